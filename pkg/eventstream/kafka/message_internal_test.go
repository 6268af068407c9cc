package kafka

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
)

var _ = Describe("buildMessage", func() {
	It("rejects nil events", func() {
		_, err := buildMessage(nil)
		Expect(err).To(MatchError(eventstream.ErrNilEvent))
	})

	It("keys by session and carries the JSON payload", func() {
		event := eventstream.NewEvent(eventstream.EventTypeSessionDeleted, "coll")
		event.SessionID = "s1"
		event.Count = 4

		msg, err := buildMessage(event)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(msg.Key)).To(Equal("s1"))
		Expect(msg.Time).To(Equal(event.EmittedAt))
		Expect(msg.Headers).To(HaveLen(1))
		Expect(string(msg.Headers[0].Value)).To(Equal(eventstream.EventTypeSessionDeleted))

		var decoded eventstream.MemoryEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.Count).To(Equal(int64(4)))
		Expect(decoded.EventID).To(Equal(event.EventID))
	})
})
