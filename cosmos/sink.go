package cosmos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edulake/shapeld/jsonld"
)

// ErrAuth aborts a batch when the very first upsert is rejected for
// credentials, since every later upsert would fail the same way.
var ErrAuth = errors.New("cosmos authentication")

// DefaultConcurrency is the worker count used when none is configured.
const DefaultConcurrency = 25

// Prepare clones a document for storage: derives the required "id"
// field from the last IRI segment of @id and injects "partitionKey"
// from the explicit value or, failing that, the document's @type. The
// input document is never modified.
func Prepare(doc *jsonld.Object, partitionValue string) (*jsonld.Object, error) {
	id, err := documentID(doc)
	if err != nil {
		return nil, err
	}

	out := doc.Clone()
	out.Set("id", id)

	pk := partitionValue
	if pk == "" {
		if typ, ok := out.Get("@type"); ok {
			pk, _ = typ.(string)
		}
	}

	out.Set("partitionKey", pk)

	return out, nil
}

func documentID(doc *jsonld.Object) (string, error) {
	raw, _ := doc.Get("@id")

	iri, _ := raw.(string)
	if iri == "" {
		return "", &UpsertError{Kind: KindIDEmpty, Message: "document has no @id"}
	}

	segment := iri
	if idx := strings.LastIndexAny(iri, "/#"); idx >= 0 {
		segment = iri[idx+1:]
	}

	if segment == "" {
		return "", &UpsertError{Kind: KindIDEmpty, Message: fmt.Sprintf("@id %q has an empty final segment", iri)}
	}

	return segment, nil
}

// BulkResult aggregates one bulk upsert run.
type BulkResult struct {
	Succeeded int
	Failed    int
	TotalRU   float64
	Errors    []UpsertError
}

// Sink performs bulk upserts against a Client.
type Sink struct {
	client      Client
	concurrency int
	logger      *slog.Logger
}

// Option configures a [Sink].
type Option func(*Sink)

// WithConcurrency bounds the in-flight upserts.
func WithConcurrency(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger for per-document failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// NewSink wraps a client for bulk upserts.
func NewSink(client Client, opts ...Option) *Sink {
	s := &Sink{
		client:      client,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type preparedDoc struct {
	id   string
	pk   string
	data []byte
}

// UpsertMany prepares and upserts documents under bounded concurrency.
// Per-document failures accumulate in the result without aborting the
// batch; an authentication failure aborts, since every later upsert
// would fail the same way, and cancellation stops feeding workers while
// in-flight upserts complete.
func (s *Sink) UpsertMany(ctx context.Context, docs []*jsonld.Object, partitionValue string) (*BulkResult, error) {
	result := &BulkResult{}

	var mu sync.Mutex

	fail := func(id string, ue *UpsertError) {
		mu.Lock()
		defer mu.Unlock()

		if ue.ID == "" {
			ue.ID = id
		}

		result.Failed++
		result.Errors = append(result.Errors, *ue)
	}

	ch := make(chan preparedDoc, 2*s.concurrency)

	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < s.concurrency; w++ {
		g.Go(func() error {
			for doc := range ch {
				if err := gctx.Err(); err != nil {
					return err
				}

				ru, err := s.client.Upsert(gctx, doc.data, doc.pk)
				if err != nil {
					var ue *UpsertError
					if !errors.As(err, &ue) {
						ue = &UpsertError{Kind: KindNetwork, Message: err.Error(), Retryable: true}
					}

					if ue.Kind == KindAuth {
						return fmt.Errorf("%w: %w", ErrAuth, ue)
					}

					s.logger.Warn("upsert failed",
						slog.String("id", doc.id),
						slog.String("kind", string(ue.Kind)),
					)
					fail(doc.id, ue)

					continue
				}

				mu.Lock()
				result.Succeeded++
				result.TotalRU += ru
				mu.Unlock()
			}

			return nil
		})
	}

	feed := func() {
		defer close(ch)

		for _, doc := range docs {
			prepared, err := Prepare(doc, partitionValue)
			if err != nil {
				var ue *UpsertError
				if errors.As(err, &ue) {
					fail("", ue)
				} else {
					fail("", &UpsertError{Kind: KindIDEmpty, Message: err.Error()})
				}

				continue
			}

			id, _ := prepared.Get("id")
			idStr, _ := id.(string)

			data, err := jsonld.Marshal(prepared)
			if err != nil {
				fail(idStr, &UpsertError{Kind: KindNetwork, Message: "serialize: " + err.Error()})

				continue
			}

			select {
			case ch <- preparedDoc{id: idStr, pk: partitionKeyOf(prepared), data: data}:
			case <-gctx.Done():
				return
			}
		}
	}

	feed()

	if err := g.Wait(); err != nil {
		return result, err
	}

	// Partial counts stay accurate at the cancellation point.
	if err := ctx.Err(); err != nil {
		return result, err
	}

	return result, nil
}

func partitionKeyOf(doc *jsonld.Object) string {
	pk, _ := doc.Get("partitionKey")

	str, _ := pk.(string)

	return str
}
