// Package builder renders mapped records into JSON-LD documents by
// walking the mapping plan directly, without constructing an RDF graph.
// Output key order is determined entirely by the mapping config.
package builder
