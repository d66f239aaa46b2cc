package badger

// Key prefixes for different data types
const (
	vectorPrefix   = "vec:"
	vectorDimKey   = "vecdim"
	documentPrefix = "doc:"
)

// makeVectorKey generates a key for a vector by ID.
func makeVectorKey(id string) []byte {
	return []byte(vectorPrefix + id)
}

// makeDocumentKey generates a key for document metadata by ID.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}
