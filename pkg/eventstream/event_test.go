package eventstream_test

import (
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals MemoryEvent with expected top-level keys", func() {
		event := eventstream.NewEvent(eventstream.EventTypeMigrationCompleted, "mnemosyne_default")
		event.Migration = &eventstream.MigrationMeta{
			OldDimension: 768,
			NewDimension: 1024,
			Exported:     3,
			Succeeded:    2,
			Failed:       1,
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("migration"))
		Expect(got).NotTo(HaveKey("session_id"))
	})

	It("stamps new events", func() {
		event := eventstream.NewEvent(eventstream.EventTypeMemoryStored, "coll")
		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(strings.HasPrefix(event.EventID, "evt_")).To(BeTrue())
		Expect(event.EmittedAt).NotTo(BeZero())
		Expect(event.Source.Service).To(Equal("mnemosyne"))
		Expect(event.Source.Collection).To(Equal("coll"))
	})

	It("keys by session, falling back to collection", func() {
		event := eventstream.NewEvent(eventstream.EventTypeSessionDeleted, "coll")
		Expect(event.Key()).To(Equal("coll"))
		event.SessionID = "s1"
		Expect(event.Key()).To(Equal("s1"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.EventTypeMemoryStored).To(Equal("mnemosyne.memory.stored"))
		Expect(eventstream.EventTypeSessionDeleted).To(Equal("mnemosyne.session.deleted"))
		Expect(eventstream.EventTypeMigrationCompleted).To(Equal("mnemosyne.migration.completed"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil memory event"))
	})
})
