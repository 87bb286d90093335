// Package jsonld provides the JSON-LD document model used throughout
// shapeld: an insertion-ordered [Object], typed literals, a parsed
// [Context] with term and IRI lookup in both directions, and an
// order-preserving serializer.
//
// Documents are plain data. An [Object] holds string keys in insertion
// order, so the serialized key order of a document is exactly the order
// in which the builder emitted fields. [Marshal] rejects non-finite
// floats anywhere in a document rather than producing invalid JSON.
package jsonld
