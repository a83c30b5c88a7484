// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): extraction providers, embedding and
// rerank services, the durable store, the ephemeral cache and the
// ingestion task queue.
package driven
