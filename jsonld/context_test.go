package jsonld_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulake/shapeld/jsonld"
)

const testContext = `{
  "@context": {
    "@base": "https://ceds.ed.gov/data/",
    "@vocab": "http://ceds.ed.gov/terms#",
    "xsd": "http://www.w3.org/2001/XMLSchema#",
    "ceds": "http://ceds.ed.gov/terms#",
    "FirstName": {"@id": "ceds:FirstName"},
    "Birthdate": {"@id": "ceds:Birthdate", "@type": "xsd:date"},
    "hasRaceAndEthnicity": {"@id": "ceds:hasRaceAndEthnicity", "@container": "@set"},
    "hasSex": {"@id": "ceds:hasSex", "@type": "@id"}
  }
}`

func TestParseContext(t *testing.T) {
	t.Parallel()

	ctx, err := jsonld.ParseContext([]byte(testContext))
	require.NoError(t, err)

	assert.Equal(t, "https://ceds.ed.gov/data/", ctx.Base)
	assert.Equal(t, "http://ceds.ed.gov/terms#", ctx.Vocab)

	term, ok := ctx.Term("Birthdate")
	require.True(t, ok)
	assert.Equal(t, "ceds:Birthdate", term.IRI)
	assert.Equal(t, "xsd:date", term.Type)

	assert.True(t, ctx.HasTerm("FirstName"))
	assert.False(t, ctx.HasTerm("Nope"))
}

func TestContextExpand(t *testing.T) {
	t.Parallel()

	ctx, err := jsonld.ParseContext([]byte(testContext))
	require.NoError(t, err)

	tcs := map[string]struct {
		input string
		want  string
	}{
		"term":          {input: "FirstName", want: "http://ceds.ed.gov/terms#FirstName"},
		"compact iri":   {input: "xsd:date", want: "http://www.w3.org/2001/XMLSchema#date"},
		"vocab default": {input: "Unmapped", want: "http://ceds.ed.gov/terms#Unmapped"},
		"absolute iri":  {input: "https://example.org/x", want: "https://example.org/x"},
		"keyword":       {input: "@type", want: "@type"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, ctx.Expand(tc.input))
		})
	}
}

func TestContextTermForIRI(t *testing.T) {
	t.Parallel()

	ctx, err := jsonld.ParseContext([]byte(testContext))
	require.NoError(t, err)

	term, ok := ctx.TermForIRI("http://ceds.ed.gov/terms#Birthdate")
	require.True(t, ok)
	assert.Equal(t, "Birthdate", term)

	_, ok = ctx.TermForIRI("http://example.org/unknown")
	assert.False(t, ok)
}

func TestContextSetContainer(t *testing.T) {
	t.Parallel()

	ctx, err := jsonld.ParseContext([]byte(testContext))
	require.NoError(t, err)

	assert.True(t, ctx.IsSetContainer("hasRaceAndEthnicity"))
	assert.False(t, ctx.IsSetContainer("FirstName"))
	assert.False(t, ctx.IsSetContainer("missing"))
}

func TestParseContextErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]string{
		"not json":         `not json`,
		"context is array": `{"@context": ["a", "b"]}`,
		"bad term":         `{"@context": {"term": 42}}`,
		"bad base":         `{"@context": {"@base": 1}}`,
	}

	for name, input := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := jsonld.ParseContext([]byte(input))
			require.ErrorIs(t, err, jsonld.ErrInvalidContext)
		})
	}
}
