package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryStored is emitted after a summary record is inserted.
	EventTypeMemoryStored = "mnemosyne.memory.stored"

	// EventTypeSessionDeleted is emitted after a session's records are deleted.
	EventTypeSessionDeleted = "mnemosyne.session.deleted"

	// EventTypeCollectionDropped is emitted after an administrative drop.
	EventTypeCollectionDropped = "mnemosyne.collection.dropped"

	// EventTypeMigrationCompleted is emitted after a dimension migration finalizes.
	EventTypeMigrationCompleted = "mnemosyne.migration.completed"
)

// Service is the source service name stamped on every event.
const Service = "mnemosyne"

// MemoryEvent is a transport-neutral payload for memory lifecycle events.
type MemoryEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`

	SessionID     string `json:"session_id,omitempty"`
	PersonalityID string `json:"personality_id,omitempty"`
	RecordID      string `json:"record_id,omitempty"`

	// Count is the number of records affected, when the event covers many.
	Count int64 `json:"count,omitempty"`

	Migration *MigrationMeta `json:"migration,omitempty"`
}

// EventSource identifies where the event originated.
type EventSource struct {
	Service    string `json:"service"`
	Collection string `json:"collection"`
}

// MigrationMeta summarizes a finalized migration.
type MigrationMeta struct {
	OldDimension int    `json:"old_dimension"`
	NewDimension int    `json:"new_dimension"`
	Exported     int    `json:"exported"`
	Succeeded    int64  `json:"succeeded"`
	Failed       int64  `json:"failed"`
	BackupPath   string `json:"backup_path,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// NewEvent returns an event of the given type stamped with a fresh ID and
// the current time.
func NewEvent(eventType, collection string) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Service:    Service,
			Collection: collection,
		},
	}
}

// Key returns the partition key for the event: the session when set,
// otherwise the collection.
func (e *MemoryEvent) Key() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return e.Source.Collection
}
