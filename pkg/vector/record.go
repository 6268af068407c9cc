package vector

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"
)

// Record field names. These are also the field names accepted by Filter and
// Query.OutputFields.
const (
	FieldID            = "id"
	FieldContent       = "content"
	FieldEmbedding     = "embedding"
	FieldSessionID     = "session_id"
	FieldPersonalityID = "personality_id"
	FieldCreateTime    = "create_time"
)

// DimParam is the schema param key that carries the embedding width.
const DimParam = "dim"

// Record is a single persisted unit of long-term memory.
type Record struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	Embedding     []float32 `json:"embedding,omitempty"`
	SessionID     string    `json:"session_id"`
	PersonalityID string    `json:"personality_id"`

	// CreateTime is a Unix timestamp in seconds. Zero means unknown.
	CreateTime int64 `json:"create_time"`
}

// NewRecordID returns a fresh record ID.
func NewRecordID() string {
	return uuid.NewString()
}

// WantsField reports whether a query with the given output fields should
// populate field. An empty list selects every scalar field; the embedding is
// only returned when asked for by name.
func WantsField(outputFields []string, field string) bool {
	if field == FieldID {
		return true
	}
	if len(outputFields) == 0 {
		return field != FieldEmbedding
	}
	return slices.Contains(outputFields, field)
}

// Project returns a copy of r holding only the requested fields.
func (r Record) Project(outputFields []string) Record {
	out := Record{ID: r.ID}
	if WantsField(outputFields, FieldContent) {
		out.Content = r.Content
	}
	if WantsField(outputFields, FieldEmbedding) {
		out.Embedding = r.Embedding
	}
	if WantsField(outputFields, FieldSessionID) {
		out.SessionID = r.SessionID
	}
	if WantsField(outputFields, FieldPersonalityID) {
		out.PersonalityID = r.PersonalityID
	}
	if WantsField(outputFields, FieldCreateTime) {
		out.CreateTime = r.CreateTime
	}
	return out
}

// FieldType names the storage type of a schema field.
type FieldType string

const (
	FieldTypeVarChar     FieldType = "varchar"
	FieldTypeInt64       FieldType = "int64"
	FieldTypeFloatVector FieldType = "float_vector"
)

// FieldSchema describes one field of a collection.
type FieldSchema struct {
	Name       string            `json:"name"`
	Type       FieldType         `json:"type"`
	PrimaryKey bool              `json:"primary_key,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// Schema is the field list of a collection.
type Schema struct {
	Collection string        `json:"collection"`
	Fields     []FieldSchema `json:"fields"`
}

// NewSchema returns the memory record schema with an embedding field of width dim.
func NewSchema(collection string, dim int) *Schema {
	return &Schema{
		Collection: collection,
		Fields: []FieldSchema{
			{Name: FieldID, Type: FieldTypeVarChar, PrimaryKey: true},
			{Name: FieldContent, Type: FieldTypeVarChar},
			{Name: FieldEmbedding, Type: FieldTypeFloatVector, Params: map[string]string{DimParam: strconv.Itoa(dim)}},
			{Name: FieldSessionID, Type: FieldTypeVarChar},
			{Name: FieldPersonalityID, Type: FieldTypeVarChar},
			{Name: FieldCreateTime, Type: FieldTypeInt64},
		},
	}
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (FieldSchema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// Dimension returns the width of the embedding field.
func (s *Schema) Dimension() (int, error) {
	f, ok := s.Field(FieldEmbedding)
	if !ok {
		return 0, fmt.Errorf("%w: collection %q has no %s field", ErrNotFound, s.Collection, FieldEmbedding)
	}

	raw, ok := f.Params[DimParam]
	if !ok {
		return 0, fmt.Errorf("%w: %s field of %q has no %s param", ErrNotFound, FieldEmbedding, s.Collection, DimParam)
	}

	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("%w: invalid %s param %q on %q", ErrValidation, DimParam, raw, s.Collection)
	}
	return dim, nil
}
