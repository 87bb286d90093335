package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/edulake/shapeld/builder"
	"github.com/edulake/shapeld/cosmos"
	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/shape"
	"github.com/edulake/shapeld/transform"
	"github.com/edulake/shapeld/validate"
)

var (
	// ErrRunning indicates a second run was started while one is active.
	ErrRunning = errors.New("pipeline already running")
	// ErrSink indicates the output destination rejected a write.
	ErrSink = errors.New("sink write")
)

// State of the most recent run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Progress receives periodic run updates. total is -1 when the source
// cannot count ahead of time.
type Progress func(processed, total int)

// defaultProgressEvery is how many records pass between progress calls.
const defaultProgressEvery = 1000

// cosmosBatch is how many documents accumulate before a bulk upsert.
// Bounds memory while keeping the sink's workers saturated.
const cosmosBatch = 200

// Result summarizes one run. RecordsIn always equals RecordsOut plus
// RecordsFailed plus RecordsFiltered, including on cancellation.
type Result struct {
	RecordsIn        int
	RecordsOut       int
	RecordsFailed    int
	RecordsFiltered  int
	BytesWritten     int64
	Elapsed          time.Duration
	RecordsPerSecond float64
	// DeadLetterPath is set when at least one record was dead-lettered.
	DeadLetterPath string
	State          State
}

// Pipeline converts raw records from a source into shape-conformant
// JSON-LD documents. A pipeline is built once per shape and reused
// across runs; each run takes its own source.
type Pipeline struct {
	def      *shape.Definition
	mapper   *mapping.Mapper
	builder  *builder.Builder
	pre      *validate.PreBuild
	shaclVal *validate.SHACL

	mode     validate.Mode
	valOpts  validate.Options
	preCheck bool

	dlqPath       string
	progress      Progress
	progressEvery int
	logger        *slog.Logger

	mu    sync.Mutex
	state State
}

// Option configures a [Pipeline].
type Option func(*config)

type config struct {
	transforms    map[string]transform.Func
	overrides     *mapping.Overrides
	mode          validate.Mode
	valOpts       validate.Options
	preCheck      bool
	shaclCheck    bool
	dlqPath       string
	progress      Progress
	progressEvery int
	logger        *slog.Logger
}

// WithTransforms registers custom transforms alongside the built-ins.
func WithTransforms(fns map[string]transform.Func) Option {
	return func(c *config) {
		c.transforms = fns
	}
}

// WithOverrides layers a mapping overlay over the shape's base mapping.
func WithOverrides(o mapping.Overrides) Option {
	return func(c *config) {
		c.overrides = &o
	}
}

// WithValidation enables pre-build validation in the given mode.
func WithValidation(mode validate.Mode, opts validate.Options) Option {
	return func(c *config) {
		c.preCheck = true
		c.mode = mode
		c.valOpts = opts
	}
}

// WithSHACL additionally validates built documents against the shape
// graph. Implies nothing about pre-build validation.
func WithSHACL() Option {
	return func(c *config) {
		c.shaclCheck = true
	}
}

// WithDeadLetter routes rejected records to an NDJSON file at path
// instead of only counting them.
func WithDeadLetter(path string) Option {
	return func(c *config) {
		c.dlqPath = path
	}
}

// WithProgress calls fn every n processed records. Zero n keeps the
// default interval.
func WithProgress(fn Progress, n int) Option {
	return func(c *config) {
		c.progress = fn
		if n > 0 {
			c.progressEvery = n
		}
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New assembles a pipeline for one shape definition.
func New(def *shape.Definition, opts ...Option) (*Pipeline, error) {
	c := &config{
		mode:          validate.ModeReport,
		progressEvery: defaultProgressEvery,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	var mapperOpts []mapping.Option
	if c.transforms != nil {
		mapperOpts = append(mapperOpts, mapping.WithTransforms(c.transforms))
	}

	mapperOpts = append(mapperOpts, mapping.WithLogger(c.logger))

	reg := transform.NewRegistry()

	m, err := mapping.NewMapper(def.Mapping, reg, mapperOpts...)
	if err != nil {
		return nil, fmt.Errorf("pipeline mapper: %w", err)
	}

	if c.overrides != nil {
		m, err = m.WithOverrides(*c.overrides)
		if err != nil {
			return nil, fmt.Errorf("pipeline overrides: %w", err)
		}
	}

	// The transform set is fixed for the pipeline's lifetime.
	reg.Freeze()

	b, err := builder.New(m.Config(), def.Context)
	if err != nil {
		return nil, fmt.Errorf("pipeline builder: %w", err)
	}

	p := &Pipeline{
		def:           def,
		mapper:        m,
		builder:       b,
		mode:          c.mode,
		valOpts:       c.valOpts,
		preCheck:      c.preCheck,
		dlqPath:       c.dlqPath,
		progress:      c.progress,
		progressEvery: c.progressEvery,
		logger:        c.logger,
		state:         StateIdle,
	}

	if c.preCheck {
		p.pre = validate.NewPreBuildFromShape(m.Config(), def.Root)
	}

	if c.shaclCheck {
		v, err := validate.NewSHACL(def.Root, def.Context)
		if err != nil {
			return nil, fmt.Errorf("pipeline shacl: %w", err)
		}

		p.shaclVal = v
	}

	return p, nil
}

// State reports the state of the most recent run.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Pipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateRunning {
		return ErrRunning
	}

	p.state = StateRunning

	return nil
}

func (p *Pipeline) finish(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = s
}

// Stream drains the source and calls emit once per built document.
// Rejected records are dead-lettered in report mode and abort the run
// in strict mode. An emit error always aborts. The source is closed
// when the run ends.
func (p *Pipeline) Stream(ctx context.Context, src Source, emit func(*jsonld.Object) error) (*Result, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}

	result, err := p.run(ctx, src, emit)

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.State = StateCancelled
	case err != nil:
		result.State = StateFailed
	default:
		result.State = StateCompleted
	}

	p.finish(result.State)

	return result, err
}

func (p *Pipeline) run(ctx context.Context, src Source, emit func(*jsonld.Object) error) (*Result, error) {
	start := time.Now()
	result := &Result{}

	defer func() {
		if err := src.Close(); err != nil {
			p.logger.Warn("close source", slog.Any("error", err))
		}

		result.Elapsed = time.Since(start)
		if secs := result.Elapsed.Seconds(); secs > 0 {
			result.RecordsPerSecond = float64(result.RecordsIn) / secs
		}
	}()

	var dlq *deadLetter
	if p.dlqPath != "" {
		dlq = newDeadLetter(p.dlqPath)
		defer func() {
			if err := dlq.close(); err != nil {
				p.logger.Warn("close dead-letter file", slog.Any("error", err))
			}

			if dlq.written() > 0 {
				result.DeadLetterPath = p.dlqPath
			}
		}()
	}

	total := -1
	if n, ok := src.Count(); ok {
		total = n
	}

	take := newSampleGate(p.mode, p.valOpts)

	for {
		raw, err := src.Next(ctx)
		if err != nil {
			if isEOF(err) {
				break
			}

			return result, err
		}

		result.RecordsIn++

		if allEmpty(raw) {
			result.RecordsFiltered++

			continue
		}

		if err := p.processRecord(raw, take(), dlq, result, emit); err != nil {
			return result, err
		}

		if p.progress != nil && result.RecordsIn%p.progressEvery == 0 {
			p.progress(result.RecordsIn, total)
		}
	}

	if p.progress != nil {
		p.progress(result.RecordsIn, total)
	}

	return result, nil
}

// processRecord runs one record through validate, map, and build. A nil
// return means the loop continues; record-level rejections only return
// an error in strict mode.
func (p *Pipeline) processRecord(raw mapping.Record, validated bool, dlq *deadLetter, result *Result, emit func(*jsonld.Object) error) error {
	if p.preCheck && validated {
		issues := p.pre.Record(raw)
		if issue, bad := firstError(issues); bad {
			return p.reject(raw, "validate", issue.Kind, issue.Message, dlq, result)
		}

		for _, issue := range issues {
			p.logger.Debug("validation warning", slog.String("issue", issue.String()))
		}
	}

	mapped, err := p.mapper.Map(raw)
	if err != nil {
		return p.reject(raw, "map", errorKind(err), err.Error(), dlq, result)
	}

	id, err := p.mapper.IDFor(raw)
	if err != nil {
		return p.reject(raw, "map", errorKind(err), err.Error(), dlq, result)
	}

	doc, err := p.builder.Build(id, mapped)
	if err != nil {
		return p.reject(raw, "build", errorKind(err), err.Error(), dlq, result)
	}

	if p.shaclVal != nil && validated {
		issues, err := p.shaclVal.Document(doc)
		if err != nil {
			return p.reject(raw, "shacl", "shacl", err.Error(), dlq, result)
		}

		if issue, bad := firstError(issues); bad {
			return p.reject(raw, "shacl", issue.Kind, issue.Message, dlq, result)
		}
	}

	if err := emit(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}

	result.RecordsOut++

	return nil
}

// reject counts a failed record. Report mode dead-letters it and keeps
// going; strict mode returns a validation error that stops the run.
func (p *Pipeline) reject(raw mapping.Record, reason, kind, message string, dlq *deadLetter, result *Result) error {
	result.RecordsFailed++

	if p.mode == validate.ModeStrict {
		return fmt.Errorf("%w: %s: %s", validate.ErrValidation, reason, message)
	}

	p.logger.Warn("record rejected",
		slog.String("reason", reason),
		slog.String("kind", kind),
	)

	if dlq != nil {
		if err := dlq.write(reason, kind, message, raw); err != nil {
			return err
		}
	}

	return nil
}

func firstError(issues []validate.Issue) (validate.Issue, bool) {
	for _, issue := range issues {
		if issue.Severity == validate.SeverityError {
			return issue, true
		}
	}

	return validate.Issue{}, false
}

func allEmpty(raw mapping.Record) bool {
	if len(raw) == 0 {
		return true
	}

	for _, v := range raw {
		if v == nil {
			continue
		}

		if s, ok := v.(string); ok && s == "" {
			continue
		}

		return false
	}

	return true
}

// newSampleGate returns a per-record decision for whether validation
// runs. Outside sample mode every record is validated.
func newSampleGate(mode validate.Mode, opts validate.Options) func() bool {
	if mode != validate.ModeSample {
		return func() bool { return true }
	}

	rate := opts.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 0.1
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	return func() bool { return rng.Float64() < rate }
}

// BuildAll materializes every document in memory. Prefer the streaming
// sinks for large inputs.
func (p *Pipeline) BuildAll(ctx context.Context, src Source) ([]*jsonld.Object, *Result, error) {
	var docs []*jsonld.Object

	result, err := p.Stream(ctx, src, func(doc *jsonld.Object) error {
		docs = append(docs, doc)

		return nil
	})
	if err != nil {
		return nil, result, err
	}

	return docs, result, nil
}

// countingWriter tracks bytes for Result.BytesWritten.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}

// ToJSON streams documents into w as one JSON array.
func (p *Pipeline) ToJSON(ctx context.Context, src Source, w io.Writer, pretty bool) (*Result, error) {
	cw := &countingWriter{w: w}
	first := true

	result, err := p.Stream(ctx, src, func(doc *jsonld.Object) error {
		sep := ",\n"
		if first {
			sep = "[\n"
			first = false
		}

		if _, err := io.WriteString(cw, sep); err != nil {
			return err
		}

		data, err := marshalDoc(doc, pretty)
		if err != nil {
			return err
		}

		_, err = cw.Write(data)

		return err
	})
	if result == nil {
		return nil, err
	}

	result.BytesWritten = cw.n

	if err != nil {
		return result, err
	}

	closing := "[]\n"
	if !first {
		closing = "\n]\n"
	}

	if _, werr := io.WriteString(cw, closing); werr != nil {
		return result, fmt.Errorf("%w: %w", ErrSink, werr)
	}

	result.BytesWritten = cw.n

	return result, nil
}

// ToNDJSON streams documents into w one per line.
func (p *Pipeline) ToNDJSON(ctx context.Context, src Source, w io.Writer) (*Result, error) {
	cw := &countingWriter{w: w}

	result, err := p.Stream(ctx, src, func(doc *jsonld.Object) error {
		data, err := jsonld.Marshal(doc)
		if err != nil {
			return err
		}

		if _, err := cw.Write(data); err != nil {
			return err
		}

		_, err = io.WriteString(cw, "\n")

		return err
	})
	if result == nil {
		return nil, err
	}

	result.BytesWritten = cw.n

	return result, err
}

func marshalDoc(doc *jsonld.Object, pretty bool) ([]byte, error) {
	if pretty {
		return jsonld.MarshalIndent(doc, "  ", "  ")
	}

	return jsonld.Marshal(doc)
}

// Validate drains the source through validation only. No documents
// leave the pipeline; built documents are checked and discarded.
func (p *Pipeline) Validate(ctx context.Context, src Source) (*validate.Result, *Result, error) {
	if p.pre == nil {
		p.pre = validate.NewPreBuildFromShape(p.mapper.Config(), p.def.Root)
		p.preCheck = true
	}

	if err := p.begin(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	vres := validate.NewResult()
	result := &Result{}
	take := newSampleGate(p.mode, p.valOpts)

	state := StateCompleted
	defer func() {
		if err := src.Close(); err != nil {
			p.logger.Warn("close source", slog.Any("error", err))
		}

		result.Elapsed = time.Since(start)
		if secs := result.Elapsed.Seconds(); secs > 0 {
			result.RecordsPerSecond = float64(result.RecordsIn) / secs
		}

		result.State = state
		p.finish(state)
	}()

	for {
		raw, err := src.Next(ctx)
		if err != nil {
			if isEOF(err) {
				break
			}

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				state = StateCancelled
			} else {
				state = StateFailed
			}

			return vres, result, err
		}

		result.RecordsIn++

		if allEmpty(raw) {
			result.RecordsFiltered++

			continue
		}

		if !take() {
			result.RecordsOut++

			continue
		}

		bad := p.validateRecord(raw, vres)
		if bad {
			result.RecordsFailed++
		} else {
			result.RecordsOut++
		}

		if bad && p.mode == validate.ModeStrict {
			state = StateFailed

			return vres, result, fmt.Errorf("%w: %d errors", validate.ErrValidation, vres.Errors)
		}
	}

	return vres, result, nil
}

// validateRecord collects every finding for one record and reports
// whether any was an error.
func (p *Pipeline) validateRecord(raw mapping.Record, vres *validate.Result) bool {
	errs := vres.Errors

	for _, issue := range p.pre.Record(raw) {
		vres.Add(issue)
	}

	if p.shaclVal != nil && vres.Errors == errs {
		if doc, err := p.buildOnly(raw); err == nil {
			issues, verr := p.shaclVal.Document(doc)
			if verr == nil {
				for _, issue := range issues {
					vres.Add(issue)
				}
			}
		} else {
			vres.Add(validate.Issue{
				Severity: validate.SeverityError,
				Kind:     validate.KindBadDatatype,
				Message:  err.Error(),
			})
		}
	}

	return vres.Errors > errs
}

func (p *Pipeline) buildOnly(raw mapping.Record) (*jsonld.Object, error) {
	mapped, err := p.mapper.Map(raw)
	if err != nil {
		return nil, err
	}

	id, err := p.mapper.IDFor(raw)
	if err != nil {
		return nil, err
	}

	return p.builder.Build(id, mapped)
}

// ToCosmosAccount connects to a Cosmos container with explicit
// credentials and streams documents into it. concurrency of zero or
// less keeps the sink default.
func (p *Pipeline) ToCosmosAccount(ctx context.Context, src Source, endpoint, key, database, container, partitionValue string, concurrency int) (*cosmos.BulkResult, *Result, error) {
	client, err := cosmos.NewClient(endpoint, key, database, container)
	if err != nil {
		return nil, nil, err
	}

	opts := []cosmos.Option{cosmos.WithLogger(p.logger)}
	if concurrency > 0 {
		opts = append(opts, cosmos.WithConcurrency(concurrency))
	}

	return p.ToCosmos(ctx, src, cosmos.NewSink(client, opts...), partitionValue)
}

// ToCosmos streams documents into a Cosmos sink in bounded batches. The
// pipeline result counts build outcomes; the bulk result counts upsert
// outcomes.
func (p *Pipeline) ToCosmos(ctx context.Context, src Source, sink *cosmos.Sink, partitionValue string) (*cosmos.BulkResult, *Result, error) {
	bulk := &cosmos.BulkResult{}
	batch := make([]*jsonld.Object, 0, cosmosBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		br, err := sink.UpsertMany(ctx, batch, partitionValue)
		if br != nil {
			bulk.Succeeded += br.Succeeded
			bulk.Failed += br.Failed
			bulk.TotalRU += br.TotalRU
			bulk.Errors = append(bulk.Errors, br.Errors...)
		}

		batch = batch[:0]

		return err
	}

	result, err := p.Stream(ctx, src, func(doc *jsonld.Object) error {
		batch = append(batch, doc)

		if len(batch) == cosmosBatch {
			return flush()
		}

		return nil
	})
	if err != nil {
		return bulk, result, err
	}

	if err := flush(); err != nil {
		result.State = StateFailed
		p.finish(StateFailed)

		return bulk, result, err
	}

	return bulk, result, nil
}
