// Package pipeline orchestrates one conversion run: it drains a record
// source, maps and validates each record, builds a JSON-LD document,
// and hands it to a sink. Runs stream record by record so memory stays
// flat regardless of input size, and rejected records are routed to a
// dead-letter file with PII masked.
package pipeline
