// Package validate implements the two validation tiers: fast pre-build
// checks over raw records (required fields, datatype plausibility, enum
// membership, IRI safety) and a full SHACL round trip that serializes
// built documents, reparses them as RDF, and checks the triples against
// the shape graph.
//
// Pre-build checks cost well under a microsecond per record; the SHACL
// round trip is orders of magnitude more expensive, so sample mode is
// the default for bulk workloads.
package validate
