// Package shape loads and caches shape definitions: the SHACL graph,
// JSON-LD context, and mapping config that together describe one
// document type. Definitions are loaded from per-shape directories on
// registered search paths, or fetched over HTTP into a local cache, and
// are immutable once loaded.
package shape
