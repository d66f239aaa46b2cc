// Package ingestion loads files and indexes them for question answering.
//
// The Pipeline type manages the ingestion workflow for documents:
//   - Loading PDF, text and Markdown files
//   - Deriving document IDs from title and content hash, or randomly
//   - Chunking, embedding and upserting into the vector index
//   - Recording each document's status in the document catalog
//
// IngestFiles processes files concurrently on a worker pool, one document
// per worker. Each document is still processed sequentially.
package ingestion
