package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulake/shapeld/mapping"
)

const personMapping = `
shape: Person
type: Person
context_url: https://example.org/person_context.json
base_uri: "cepi:person/"
id_source: PersonIdentifiers
id_transform: first_pipe_split
properties:
  hasPersonName:
    type: PersonName
    cardinality: single
    fields:
      FirstName: {source: FirstName}
      MiddleName: {source: MiddleName, optional: true}
      LastOrSurname: {source: LastName}
      GenerationCodeOrSuffix: {source: GenerationCodeOrSuffix, optional: true}
  hasPersonBirth:
    type: PersonBirth
    cardinality: single
    fields:
      Birthdate: {source: Birthdate, datatype: xsd:date, transform: date_format}
  hasPersonSexGender:
    type: PersonSexGender
    cardinality: single
    fields:
      hasSex: {source: Sex, transform: sex_prefix}
  hasPersonDemographicRace:
    type: PersonDemographicRace
    cardinality: single
    fields:
      hasRaceAndEthnicity: {source: RaceEthnicity, transform: race_prefix, multi_value_split: ","}
  hasPersonIdentification:
    type: PersonIdentification
    cardinality: multiple
    split_on: "|"
    fields:
      PersonIdentifier: {source: PersonIdentifiers}
      hasIdentificationSystem: {source: IdentificationSystems}
      PersonIdentifierType: {source: PersonIdentifierTypes}
record_status_defaults:
  type: RecordStatus
  fields:
    RecordStatusCode: {value: Active}
data_collection_defaults:
  type: DataCollection
  fields:
    DataCollectionName: {value: StateReporting}
`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := mapping.Parse([]byte(personMapping))
	require.NoError(t, err)

	assert.Equal(t, "Person", cfg.Shape)
	assert.Equal(t, "Person", cfg.Type)
	assert.Equal(t, "cepi:person/", cfg.BaseURI)
	assert.Equal(t, "PersonIdentifiers", cfg.IDSource)
	assert.Equal(t, "first_pipe_split", cfg.IDTransform)

	// Declaration order is preserved.
	var slotNames []string
	for _, slot := range cfg.Properties {
		slotNames = append(slotNames, slot.Name)
	}

	assert.Equal(t, []string{
		"hasPersonName",
		"hasPersonBirth",
		"hasPersonSexGender",
		"hasPersonDemographicRace",
		"hasPersonIdentification",
	}, slotNames)

	name := cfg.Properties[0]
	assert.Equal(t, "PersonName", name.Type)
	assert.Equal(t, mapping.CardinalitySingle, name.Cardinality)
	require.Len(t, name.Fields, 4)
	assert.Equal(t, "FirstName", name.Fields[0].Target)
	assert.Equal(t, "MiddleName", name.Fields[1].Target)
	assert.True(t, name.Fields[1].Optional)

	ident := cfg.Properties[4]
	assert.Equal(t, mapping.CardinalityMultiple, ident.Cardinality)
	assert.Equal(t, "|", ident.SplitOn)

	require.NotNil(t, cfg.RecordStatusDefaults)
	rule, ok := cfg.RecordStatusDefaults.Field("RecordStatusCode")
	require.True(t, ok)
	assert.True(t, rule.HasValue)
	assert.Equal(t, "Active", rule.Value)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		wantErr error
	}{
		"not yaml": {
			input:   "\t: bad",
			wantErr: mapping.ErrConfigParse,
		},
		"unknown top-level key": {
			input:   "shape: X\nid_source: ID\nbogus: true\n",
			wantErr: mapping.ErrConfigParse,
		},
		"missing shape": {
			input:   "id_source: ID\n",
			wantErr: mapping.ErrConfigParse,
		},
		"missing id_source": {
			input:   "shape: X\n",
			wantErr: mapping.ErrConfigParse,
		},
		"bad cardinality": {
			input: `
shape: X
id_source: ID
properties:
  slot:
    type: T
    cardinality: both
    fields:
      A: {source: a}
`,
			wantErr: mapping.ErrConfigParse,
		},
		"unknown datatype": {
			input: `
shape: X
id_source: ID
properties:
  slot:
    type: T
    fields:
      A: {source: a, datatype: xsd:float}
`,
			wantErr: mapping.ErrConfigInvalid,
		},
		"split without multiple": {
			input: `
shape: X
id_source: ID
properties:
  slot:
    type: T
    split_on: "|"
    fields:
      A: {source: a}
`,
			wantErr: mapping.ErrConfigInvalid,
		},
		"conflicting origins": {
			input: `
shape: X
id_source: ID
properties:
  slot:
    type: T
    fields:
      A: {source: a, value: b}
`,
			wantErr: mapping.ErrConfigInvalid,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := mapping.Parse([]byte(tc.input))
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

// Slot sections appear at three schema positions: under properties and
// as each defaults block. A config using all three must validate, and
// must keep validating on later calls since schema resolution is cached
// process-wide.
func TestParseSlotSectionsAtAllPositions(t *testing.T) {
	t.Parallel()

	const input = `
shape: X
id_source: ID
properties:
  slot:
    type: T
    fields:
      A: {source: a}
record_status_defaults:
  type: RecordStatus
  fields:
    RecordStatusCode: {value: Active}
data_collection_defaults:
  type: DataCollection
  fields:
    DataCollectionName: {value: Nightly}
`

	for range 2 {
		cfg, err := mapping.Parse([]byte(input))
		require.NoError(t, err)
		require.NotNil(t, cfg.RecordStatusDefaults)
		require.NotNil(t, cfg.DataCollectionDefaults)
		assert.Equal(t, "RecordStatus", cfg.RecordStatusDefaults.Type)
		assert.Equal(t, "DataCollection", cfg.DataCollectionDefaults.Type)
	}
}

func TestParseTransformList(t *testing.T) {
	t.Parallel()

	cfg, err := mapping.Parse([]byte(`
shape: X
id_source: ID
properties:
  slot:
    type: T
    fields:
      A: {source: a, transform: [int_clean, sex_prefix]}
`))
	require.NoError(t, err)

	rule, ok := cfg.Properties[0].Field("A")
	require.True(t, ok)
	assert.Equal(t, []string{"int_clean", "sex_prefix"}, rule.Transforms)
}
