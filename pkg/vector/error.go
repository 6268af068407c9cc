package vector

import "errors"

var (
	// ErrNotFound is returned when a collection or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection is returned when the vector store cannot be reached.
	ErrConnection = errors.New("vector store connection failed")

	// ErrValidation is returned when input is rejected before any remote call.
	ErrValidation = errors.New("validation failed")

	// ErrDimensionMismatch is returned when a record's embedding width does not
	// match the collection.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ErrAlreadyExists is returned when creating a collection that already exists.
var ErrAlreadyExists = errors.New("already exists")
