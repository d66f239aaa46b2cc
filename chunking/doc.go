// Package chunking splits document text into overlapping, token-counted chunks.
//
// Splitting is recursive: text is cut at the coarsest separator present
// (paragraph, line, sentence, word, character) and the pieces are merged
// back up to the chunk size, with each chunk overlapping its predecessor.
// Chunk ids are derived from the document id and the chunk's position, so
// chunking the same text twice yields the same ids.
package chunking
