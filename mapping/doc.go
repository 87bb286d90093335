// Package mapping implements the declarative mapping layer between
// tabular source records and shape-conformant documents: the mapping
// config file format, deep-merge composition, and the field mapper that
// executes a compiled mapping plan over raw records.
//
// A mapping config is a YAML document that names a target shape and, per
// sub-shape slot, the field rules that move source columns to target
// terms with optional transforms, datatype coercion, and multi-value
// splitting. Configs are parsed once into an immutable [Config]; the
// [Mapper] pre-binds every field rule to its transform chain at
// construction so that mapping a record is a plain traversal.
package mapping
