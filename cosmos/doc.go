// Package cosmos writes built documents to an Azure Cosmos DB container
// by bulk upsert. Documents are prepared without mutating the input,
// upserts run under a bounded worker pool with per-response request-unit
// accounting, and per-document failures are captured as typed errors
// that never abort the batch, except an authentication failure.
package cosmos
