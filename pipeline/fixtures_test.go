package pipeline_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edulake/shapeld/cosmos"
	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/shacl"
	"github.com/edulake/shapeld/shape"
)

const personMapping = `
shape: PersonShape
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
      hasIdentificationSystem: {source: IdentificationSystems, optional: true}
record_status_defaults:
  type: RecordStatus
  fields:
    RecordStatusCode: {value: Active}
data_collection_defaults:
  type: DataCollection
  fields:
    DataCollectionName: {value: StateReporting}
`

const personContext = `{
  "@context": {
    "@vocab": "http://ceds.ed.gov/terms#",
    "xsd": "http://www.w3.org/2001/XMLSchema#",
    "ceds": "http://ceds.ed.gov/terms#",
    "hasSex": {"@id": "ceds:hasSex", "@type": "@id"},
    "hasRaceAndEthnicity": {"@id": "ceds:hasRaceAndEthnicity", "@type": "@id", "@container": "@set"},
    "Birthdate": {"@id": "ceds:Birthdate"},
    "FirstName": {"@id": "ceds:FirstName"},
    "LastOrSurname": {"@id": "ceds:LastOrSurname"}
  }
}`

const personShapes = `
@prefix sh:   <http://www.w3.org/ns/shacl#> .
@prefix rdf:  <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix xsd:  <http://www.w3.org/2001/XMLSchema#> .
@prefix ceds: <http://ceds.ed.gov/terms#> .
@prefix ex:   <http://example.org/shapes#> .

ex:PersonShape a sh:NodeShape ;
    sh:targetClass ceds:Person ;
    sh:closed true ;
    sh:ignoredProperties ( rdf:type ) ;
    sh:property [
        sh:path ceds:hasPersonName ;
        sh:node ex:PersonNameShape ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:hasPersonBirth ;
        sh:node ex:PersonBirthShape ;
        sh:maxCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:hasPersonSexGender ;
        sh:node ex:PersonSexGenderShape ;
        sh:maxCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:hasPersonDemographicRace ;
        sh:node ex:PersonDemographicRaceShape ;
        sh:maxCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:hasPersonIdentification ;
        sh:node ex:PersonIdentificationShape ;
        sh:minCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:hasRecordStatus ;
        sh:node ex:RecordStatusShape ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:hasDataCollection ;
        sh:node ex:DataCollectionShape ;
        sh:maxCount 1 ;
    ] .

ex:PersonNameShape a sh:NodeShape ;
    sh:targetClass ceds:PersonName ;
    sh:property [
        sh:path ceds:FirstName ;
        sh:datatype xsd:string ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:MiddleName ;
        sh:datatype xsd:string ;
        sh:maxCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:LastOrSurname ;
        sh:datatype xsd:string ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] .

ex:PersonBirthShape a sh:NodeShape ;
    sh:targetClass ceds:PersonBirth ;
    sh:property [
        sh:path ceds:Birthdate ;
        sh:datatype xsd:date ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] .

ex:PersonSexGenderShape a sh:NodeShape ;
    sh:targetClass ceds:PersonSexGender ;
    sh:property [
        sh:path ceds:hasSex ;
        sh:in ( ceds:Sex_Female ceds:Sex_Male ceds:Sex_NotSelected ) ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] .

ex:PersonDemographicRaceShape a sh:NodeShape ;
    sh:targetClass ceds:PersonDemographicRace ;
    sh:property [
        sh:path ceds:hasRaceAndEthnicity ;
        sh:minCount 1 ;
    ] .

ex:PersonIdentificationShape a sh:NodeShape ;
    sh:targetClass ceds:PersonIdentification ;
    sh:property [
        sh:path ceds:PersonIdentifier ;
        sh:datatype xsd:string ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] ;
    sh:property [
        sh:path ceds:hasIdentificationSystem ;
        sh:maxCount 1 ;
    ] .

ex:RecordStatusShape a sh:NodeShape ;
    sh:targetClass ceds:RecordStatus ;
    sh:property [
        sh:path ceds:RecordStatusCode ;
        sh:datatype xsd:string ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] .

ex:DataCollectionShape a sh:NodeShape ;
    sh:targetClass ceds:DataCollection ;
    sh:property [
        sh:path ceds:DataCollectionName ;
        sh:datatype xsd:string ;
        sh:minCount 1 ;
        sh:maxCount 1 ;
    ] .
`

func personDefinition(t *testing.T) *shape.Definition {
	t.Helper()

	cfg, err := mapping.Parse([]byte(personMapping))
	require.NoError(t, err)

	ctx, err := jsonld.ParseContext([]byte(personContext))
	require.NoError(t, err)

	in, err := shacl.Parse([]byte(personShapes))
	require.NoError(t, err)

	root, err := in.Shape("PersonShape")
	require.NoError(t, err)

	return &shape.Definition{
		Name:    "Person",
		SHACL:   in,
		Root:    root,
		Context: ctx,
		Mapping: cfg,
	}
}

func personRow(id string) mapping.Record {
	return mapping.Record{
		"FirstName":             "EDITH",
		"MiddleName":            "M",
		"LastName":              "ADAMS",
		"Birthdate":             "1965-05-15",
		"Sex":                   "Female",
		"RaceEthnicity":         "White,Black",
		"PersonIdentifiers":     id,
		"IdentificationSystems": "SSN",
	}
}

// memSource feeds in-memory records and tracks whether Close ran.
type memSource struct {
	records []mapping.Record
	i       int
	known   bool
	closed  bool
}

func (s *memSource) Next(ctx context.Context) (mapping.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.i >= len(s.records) {
		return nil, io.EOF
	}

	rec := s.records[s.i]
	s.i++

	return rec, nil
}

func (s *memSource) Count() (int, bool) {
	if !s.known {
		return 0, false
	}

	return len(s.records), true
}

func (s *memSource) Close() error {
	s.closed = true

	return nil
}

func newTestSink(t *testing.T, client cosmos.Client) *cosmos.Sink {
	t.Helper()

	return cosmos.NewSink(client, cosmos.WithConcurrency(4))
}
