// Package domain contains the core entities of the Quarry knowledge base:
// documents, extraction sessions, chunks, embeddings, retrieval candidates
// and conversation turns. It has no dependencies on adapters or services.
package domain
