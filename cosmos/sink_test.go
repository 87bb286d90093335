package cosmos_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulake/shapeld/cosmos"
	"github.com/edulake/shapeld/jsonld"
)

// fakeClient counts concurrency and fails ids listed in failWith.
type fakeClient struct {
	mu       sync.Mutex
	inFlight int32
	peak     int32
	upserts  int
	failWith map[string]*cosmos.UpsertError
}

func (f *fakeClient) Upsert(_ context.Context, doc []byte, _ string) (float64, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)

	for {
		old := atomic.LoadInt32(&f.peak)
		if cur <= old || atomic.CompareAndSwapInt32(&f.peak, old, cur) {
			break
		}
	}

	f.mu.Lock()
	f.upserts++
	f.mu.Unlock()

	parsed, err := jsonld.Unmarshal(doc)
	if err != nil {
		return 0, err
	}

	id, _ := parsed.Get("id")

	if ue, ok := f.failWith[id.(string)]; ok {
		return 0, ue
	}

	return 5.5, nil
}

func personDoc(id string) *jsonld.Object {
	doc := jsonld.NewObject()
	doc.Set("@context", "https://example.org/person_context.json")
	doc.Set("@type", "Person")
	doc.Set("@id", "cepi:person/"+id)

	name := jsonld.NewObject()
	name.Set("@type", "PersonName")
	name.Set("FirstName", "EDITH")
	doc.Set("hasPersonName", name)

	return doc
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	doc := personDoc("989897099")
	before := doc.Clone()

	prepared, err := cosmos.Prepare(doc, "")
	require.NoError(t, err)

	id, _ := prepared.Get("id")
	assert.Equal(t, "989897099", id)

	pk, _ := prepared.Get("partitionKey")
	assert.Equal(t, "Person", pk)

	// The input document is never mutated.
	assert.True(t, doc.Equal(before))
	_, hasID := doc.Get("id")
	assert.False(t, hasID)
}

func TestPrepareExplicitPartition(t *testing.T) {
	t.Parallel()

	prepared, err := cosmos.Prepare(personDoc("1"), "district-12")
	require.NoError(t, err)

	pk, _ := prepared.Get("partitionKey")
	assert.Equal(t, "district-12", pk)
}

func TestPrepareIDErrors(t *testing.T) {
	t.Parallel()

	doc := personDoc("x")
	doc.Set("@id", "cepi:person/")

	_, err := cosmos.Prepare(doc, "")
	var ue *cosmos.UpsertError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, cosmos.KindIDEmpty, ue.Kind)

	doc.Delete("@id")
	_, err = cosmos.Prepare(doc, "")
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, cosmos.KindIDEmpty, ue.Kind)
}

// 100 documents, 3 oversized: the batch completes with the failures
// accounted per document.
func TestUpsertManyPartialFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{failWith: map[string]*cosmos.UpsertError{
		"id-10": {Kind: cosmos.KindTooLarge, Message: "body too large"},
		"id-40": {Kind: cosmos.KindTooLarge, Message: "body too large"},
		"id-77": {Kind: cosmos.KindTooLarge, Message: "body too large"},
	}}

	docs := make([]*jsonld.Object, 0, 100)
	for i := 0; i < 100; i++ {
		docs = append(docs, personDoc(fmt.Sprintf("id-%d", i)))
	}

	sink := cosmos.NewSink(client, cosmos.WithConcurrency(8))

	result, err := sink.UpsertMany(context.Background(), docs, "")
	require.NoError(t, err)

	assert.Equal(t, 97, result.Succeeded)
	assert.Equal(t, 3, result.Failed)
	assert.InDelta(t, 97*5.5, result.TotalRU, 0.001)
	require.Len(t, result.Errors, 3)

	ids := make(map[string]cosmos.ErrorKind)
	for _, ue := range result.Errors {
		ids[ue.ID] = ue.Kind
	}

	assert.Equal(t, cosmos.KindTooLarge, ids["id-10"])
	assert.Equal(t, cosmos.KindTooLarge, ids["id-40"])
	assert.Equal(t, cosmos.KindTooLarge, ids["id-77"])
}

func TestUpsertManyBoundedConcurrency(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}

	docs := make([]*jsonld.Object, 0, 60)
	for i := 0; i < 60; i++ {
		docs = append(docs, personDoc(fmt.Sprintf("id-%d", i)))
	}

	sink := cosmos.NewSink(client, cosmos.WithConcurrency(4))

	result, err := sink.UpsertMany(context.Background(), docs, "")
	require.NoError(t, err)

	assert.Equal(t, 60, result.Succeeded)
	assert.LessOrEqual(t, atomic.LoadInt32(&client.peak), int32(4))
}

func TestUpsertManyAuthAborts(t *testing.T) {
	t.Parallel()

	client := &fakeClient{failWith: map[string]*cosmos.UpsertError{
		"id-0": {Kind: cosmos.KindAuth, Message: "forbidden"},
	}}

	docs := []*jsonld.Object{personDoc("id-0"), personDoc("id-1")}

	sink := cosmos.NewSink(client, cosmos.WithConcurrency(1))

	_, err := sink.UpsertMany(context.Background(), docs, "")
	require.ErrorIs(t, err, cosmos.ErrAuth)
}

func TestUpsertManyPrepareFailureCounts(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}

	bad := personDoc("x")
	bad.Set("@id", "")

	docs := []*jsonld.Object{personDoc("id-1"), bad}

	sink := cosmos.NewSink(client)

	result, err := sink.UpsertMany(context.Background(), docs, "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, cosmos.KindIDEmpty, result.Errors[0].Kind)
}

func TestUpsertManyCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{}
	sink := cosmos.NewSink(client, cosmos.WithConcurrency(2))

	docs := []*jsonld.Object{personDoc("id-1"), personDoc("id-2")}

	_, err := sink.UpsertMany(ctx, docs, "")
	require.ErrorIs(t, err, context.Canceled)
}
