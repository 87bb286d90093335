// Package shacl parses SHACL shape graphs written in Turtle into a tree
// of node-shape records, generates skeleton mapping configs from a shape,
// and cross-validates a mapping config against a shape.
//
// Only the SHACL vocabulary subset used by education-record shapes is
// interpreted: sh:NodeShape, sh:property, sh:path, sh:datatype,
// sh:minCount, sh:maxCount, sh:in, sh:closed, sh:ignoredProperties,
// sh:class, and sh:node. Anything else in the graph is carried but
// ignored.
package shacl
