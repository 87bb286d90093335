package mapping_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/transform"
)

func personRow() mapping.Record {
	return mapping.Record{
		"FirstName":               "EDITH",
		"MiddleName":              "M",
		"LastName":                "ADAMS",
		"GenerationCodeOrSuffix":  "III",
		"Birthdate":               "1965-05-15",
		"Sex":                     "Female",
		"RaceEthnicity":           "White,Black",
		"PersonIdentifiers":       "989897099",
		"IdentificationSystems":   "SSN",
		"PersonIdentifierTypes":   "PersonIdentifier",
	}
}

func newPersonMapper(t *testing.T) *mapping.Mapper {
	t.Helper()

	cfg, err := mapping.Parse([]byte(personMapping))
	require.NoError(t, err)

	m, err := mapping.NewMapper(cfg, transform.NewRegistry())
	require.NoError(t, err)

	return m
}

func TestMapGoldenPerson(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	mapped, err := m.Map(personRow())
	require.NoError(t, err)

	name := mapped["hasPersonName"].(mapping.Payload)
	assert.Equal(t, "EDITH", name["FirstName"])
	assert.Equal(t, "M", name["MiddleName"])
	assert.Equal(t, "ADAMS", name["LastOrSurname"])

	birth := mapped["hasPersonBirth"].(mapping.Payload)
	assert.Equal(t, jsonld.TypedLiteral{Value: "1965-05-15", Datatype: "xsd:date"}, birth["Birthdate"])

	sex := mapped["hasPersonSexGender"].(mapping.Payload)
	assert.Equal(t, "Sex_Female", sex["hasSex"])

	race := mapped["hasPersonDemographicRace"].(mapping.Payload)
	assert.Equal(t, []any{"RaceAndEthnicity_White", "RaceAndEthnicity_Black"}, race["hasRaceAndEthnicity"])

	idents := mapped["hasPersonIdentification"].([]mapping.Payload)
	require.Len(t, idents, 1)
	assert.Equal(t, "989897099", idents[0]["PersonIdentifier"])
	assert.Equal(t, "SSN", idents[0]["hasIdentificationSystem"])

	status := mapped[mapping.RecordStatusKey].(mapping.Payload)
	assert.Equal(t, "Active", status["RecordStatusCode"])

	collection := mapped[mapping.DataCollectionKey].(mapping.Payload)
	assert.Equal(t, "StateReporting", collection["DataCollectionName"])
}

func TestMapMultipleGroups(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	row := personRow()
	row["PersonIdentifiers"] = "989897099|12345"
	row["IdentificationSystems"] = "SSN|District"
	row["PersonIdentifierTypes"] = "PersonIdentifier|PersonIdentifier"

	mapped, err := m.Map(row)
	require.NoError(t, err)

	idents := mapped["hasPersonIdentification"].([]mapping.Payload)
	require.Len(t, idents, 2)
	assert.Equal(t, "989897099", idents[0]["PersonIdentifier"])
	assert.Equal(t, "District", idents[1]["hasIdentificationSystem"])
}

// Mismatched split_on group lengths are rejected.
func TestMapRaggedMultiValue(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	row := personRow()
	row["PersonIdentifiers"] = "A|B|C"
	row["IdentificationSystems"] = "SSN|District"
	row["PersonIdentifierTypes"] = "PersonIdentifier|PersonIdentifier|PersonIdentifier"

	_, err := m.Map(row)
	require.ErrorIs(t, err, mapping.ErrRaggedMultiValue)
	assert.Contains(t, err.Error(), "hasPersonIdentification")
}

func TestMapRequiredMissing(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	row := personRow()
	delete(row, "LastName")

	_, err := m.Map(row)
	require.ErrorIs(t, err, mapping.ErrRequiredMissing)
	assert.Contains(t, err.Error(), "LastOrSurname")
	assert.Contains(t, err.Error(), "LastName")
	assert.Contains(t, err.Error(), "FirstName") // available columns listed
}

func TestMapOptionalDropped(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	row := personRow()
	row["MiddleName"] = ""
	delete(row, "GenerationCodeOrSuffix")

	mapped, err := m.Map(row)
	require.NoError(t, err)

	name := mapped["hasPersonName"].(mapping.Payload)
	_, hasMiddle := name["MiddleName"]
	assert.False(t, hasMiddle)
	_, hasSuffix := name["GenerationCodeOrSuffix"]
	assert.False(t, hasSuffix)
}

func TestMapRejectsNonFinite(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	row := personRow()
	row["Birthdate"] = math.NaN()

	_, err := m.Map(row)
	require.ErrorIs(t, err, mapping.ErrInvalidScalar)
}

func TestMapRejectsNestedStructures(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	row := personRow()
	row["FirstName"] = map[string]any{"nested": true}

	_, err := m.Map(row)
	require.ErrorIs(t, err, mapping.ErrInvalidScalar)
}

func TestMapRejectsBooleanForString(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	row := personRow()
	row["FirstName"] = true

	_, err := m.Map(row)
	require.ErrorIs(t, err, mapping.ErrTypeMismatch)
}

func TestMapRejectsBadDate(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	row := personRow()
	row["Birthdate"] = "05-15-1965"

	_, err := m.Map(row)
	require.ErrorIs(t, err, mapping.ErrTypeMismatch)
}

func TestIDFor(t *testing.T) {
	t.Parallel()

	m := newPersonMapper(t)

	id, err := m.IDFor(personRow())
	require.NoError(t, err)
	assert.Equal(t, "989897099", id)

	// Pure digits survive first_pipe_split verbatim, at any length.
	row := personRow()
	row["PersonIdentifiers"] = "9898970991234567"

	id, err = m.IDFor(row)
	require.NoError(t, err)
	assert.Equal(t, "9898970991234567", id)
}

// WithOverrides never mutates its receiver, and two derivations are
// independent.
func TestWithOverrides(t *testing.T) {
	t.Parallel()

	base := newPersonMapper(t)

	m1, err := base.WithOverrides(mapping.Overrides{
		IDSource: "StudentNumber",
		SourceOverrides: map[string]map[string]string{
			"hasPersonName": {"FirstName": "GivenName"},
		},
	})
	require.NoError(t, err)

	m2, err := base.WithOverrides(mapping.Overrides{
		IDSource: "StaffNumber",
		Transforms: map[string]transform.Func{
			"shout": func(v string) (string, error) { return strings.ToUpper(v), nil },
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "PersonIdentifiers", base.Config().IDSource)
	assert.Equal(t, "StudentNumber", m1.Config().IDSource)
	assert.Equal(t, "StaffNumber", m2.Config().IDSource)

	rule, ok := m1.Config().Properties[0].Field("FirstName")
	require.True(t, ok)
	assert.Equal(t, "GivenName", rule.Source)

	rule, ok = base.Config().Properties[0].Field("FirstName")
	require.True(t, ok)
	assert.Equal(t, "FirstName", rule.Source)
}

func TestNewMapperUnknownTransform(t *testing.T) {
	t.Parallel()

	cfg, err := mapping.Parse([]byte(`
shape: X
id_source: ID
properties:
  slot:
    type: T
    fields:
      A: {source: a, transform: does_not_exist}
`))
	require.NoError(t, err)

	_, err = mapping.NewMapper(cfg, transform.NewRegistry())
	require.ErrorIs(t, err, transform.ErrUnknownTransform)
}

// User transforms may add names but never replace a built-in.
func TestNewMapperRejectsBuiltinTransformName(t *testing.T) {
	t.Parallel()

	cfg, err := mapping.Parse([]byte(personMapping))
	require.NoError(t, err)

	_, err = mapping.NewMapper(cfg, transform.NewRegistry(), mapping.WithTransforms(map[string]transform.Func{
		"sex_prefix": func(v string) (string, error) { return "CUSTOM_" + v, nil },
	}))
	require.ErrorIs(t, err, mapping.ErrConfigInvalid)
	require.ErrorIs(t, err, transform.ErrBuiltinRedefinition)
	assert.Contains(t, err.Error(), "sex_prefix")

	base := newPersonMapper(t)

	_, err = base.WithOverrides(mapping.Overrides{
		Transforms: map[string]transform.Func{
			"date_format": func(v string) (string, error) { return v, nil },
		},
	})
	require.ErrorIs(t, err, transform.ErrBuiltinRedefinition)

	// The built-in keeps applying.
	mapped, err := base.Map(personRow())
	require.NoError(t, err)

	sex := mapped["hasPersonSexGender"].(mapping.Payload)
	assert.Equal(t, "Sex_Female", sex["hasSex"])
}
