package validate

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrValidation carries a non-conforming result in strict mode.
	ErrValidation = errors.New("validation failed")
	// ErrUnknownMode indicates an unrecognized validation mode string.
	ErrUnknownMode = errors.New("unknown validation mode")
)

// Severity grades an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Mode selects how a validator reacts to findings.
type Mode string

const (
	// ModeStrict fails on the first error.
	ModeStrict Mode = "strict"
	// ModeReport accumulates every issue.
	ModeReport Mode = "report"
	// ModeSample validates a seeded random fraction of the input.
	ModeSample Mode = "sample"
)

// ParseMode converts a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModeReport, ModeSample:
		return Mode(s), nil
	}

	return "", fmt.Errorf("%w: %q (known: strict, report, sample)", ErrUnknownMode, s)
}

// Issue kinds.
const (
	KindRequiredMissing = "RequiredMissing"
	KindBadDatatype     = "BadDatatype"
	KindEnumViolation   = "EnumViolation"
	KindUnsafeIRI       = "UnsafeIRI"
	KindSHACLViolation  = "SHACLViolation"
)

// Issue is one validation finding.
type Issue struct {
	// RecordID identifies the record, when known.
	RecordID string
	// FieldPath locates the finding, as a context term where one exists.
	FieldPath string
	// Severity is error or warning.
	Severity Severity
	// Kind is the issue kind, one of the Kind constants.
	Kind string
	// Message describes what failed and how to fix it.
	Message string
}

func (i Issue) String() string {
	loc := i.FieldPath
	if i.RecordID != "" {
		loc = i.RecordID + "/" + loc
	}

	return fmt.Sprintf("%s [%s] %s: %s", i.Severity, i.Kind, loc, i.Message)
}

// Result aggregates validation findings. Counts always equal the number
// of issues of the matching severity.
type Result struct {
	Conforms bool
	Errors   int
	Warnings int
	Issues   []Issue
}

// NewResult returns a conforming empty result.
func NewResult() *Result {
	return &Result{Conforms: true}
}

// Add appends an issue and updates the counters.
func (r *Result) Add(issue Issue) {
	r.Issues = append(r.Issues, issue)

	switch issue.Severity {
	case SeverityError:
		r.Errors++
		r.Conforms = false
	case SeverityWarning:
		r.Warnings++
	}
}

// Merge folds another result into the receiver.
func (r *Result) Merge(other *Result) {
	for _, issue := range other.Issues {
		r.Add(issue)
	}
}

// Options tune a validation run.
type Options struct {
	// SampleRate is the fraction of records checked in sample mode.
	// Zero means the default of 0.1.
	SampleRate float64
	// Seed seeds the sampling RNG so runs are reproducible.
	Seed uint64
}

func (o Options) rate() float64 {
	if o.SampleRate <= 0 || o.SampleRate > 1 {
		return 0.1
	}

	return o.SampleRate
}

// sampler decides per record whether it is validated in sample mode.
// In every other mode it always says yes.
type sampler struct {
	rng  *rand.Rand
	rate float64
}

func newSampler(mode Mode, opts Options) *sampler {
	if mode != ModeSample {
		return &sampler{rate: 1}
	}

	return &sampler{
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed)),
		rate: opts.rate(),
	}
}

func (s *sampler) take() bool {
	if s.rng == nil {
		return true
	}

	return s.rng.Float64() < s.rate
}
