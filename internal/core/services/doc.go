// Package services implements the driving port interfaces.
// Services contain the core business logic: the ingestion
// orchestrator, the embedding writer, the hybrid retriever, the
// reranker and the conversation service. They talk to infrastructure
// only through driven ports.
package services
