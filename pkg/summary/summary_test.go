package summary_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
	"github.com/papercomputeco/mnemosyne/pkg/logger"
	"github.com/papercomputeco/mnemosyne/pkg/session"
	"github.com/papercomputeco/mnemosyne/pkg/summary"
	testutils "github.com/papercomputeco/mnemosyne/pkg/utils/test"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

var _ = Describe("Pipeline", func() {
	var (
		ctx        context.Context
		store      *testutils.MockRecordStore
		embedder   *testutils.MockEmbedder
		summarizer *testutils.MockSummarizer
		publisher  *testutils.MockPublisher
		tracker    *session.Tracker
		now        time.Time
		pipeline   *summary.Pipeline
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = testutils.NewMockRecordStore()
		store.Seed("memories", testutils.DefaultMockDimension)
		embedder = testutils.NewMockEmbedder()
		summarizer = testutils.NewMockSummarizer("  Alice prefers tea.  ")
		publisher = testutils.NewMockPublisher()
		now = time.Unix(1_700_000_000, 0)
		tracker = session.NewTracker(session.WithClock(func() time.Time { return now }))

		var err error
		pipeline, err = summary.NewPipeline(summary.Config{
			Store:      store,
			Embedder:   embedder,
			Summarizer: summarizer,
			Tracker:    tracker,
			Collection: "memories",
			Publisher:  publisher,
			Logger:     logger.Nop(),
			Now:        func() time.Time { return now },
		})
		Expect(err).NotTo(HaveOccurred())
	})

	request := func() summary.Request {
		return summary.Request{
			SessionID:     "chat:42",
			PersonalityID: "default",
			History:       "User: I like tea\nAssistant: Noted.",
		}
	}

	It("requires its collaborators", func() {
		_, err := summary.NewPipeline(summary.Config{Collection: "memories"})
		Expect(errors.Is(err, vector.ErrValidation)).To(BeTrue())
	})

	It("summarizes, embeds, stores and touches the session", func() {
		res, err := pipeline.Run(ctx, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Summary).To(Equal("Alice prefers tea."))
		Expect(res.CreateTime).To(Equal(now.Unix()))
		Expect(res.Dimension).To(Equal(testutils.DefaultMockDimension))

		records := store.Records("memories")
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal(res.RecordID))
		Expect(records[0].Content).To(Equal("Alice prefers tea."))
		Expect(records[0].SessionID).To(Equal("chat:42"))
		Expect(records[0].PersonalityID).To(Equal("default"))

		Expect(summarizer.Inputs()).To(Equal([]string{request().History}))
		Expect(embedder.Calls()).To(Equal([]string{"Alice prefers tea."}))
		Expect(store.CallCount("Flush")).To(Equal(1))
		Expect(tracker.LastSummaryUnix("chat:42")).To(Equal(now.Unix()))

		events := publisher.Events()
		Expect(events).To(HaveLen(1))
		Expect(events[0].EventType).To(Equal(eventstream.EventTypeMemoryStored))
		Expect(events[0].RecordID).To(Equal(res.RecordID))
	})

	It("rejects invalid session ids before any call", func() {
		req := request()
		req.SessionID = "abc; DROP"
		_, err := pipeline.Run(ctx, req)
		Expect(errors.Is(err, vector.ErrValidation)).To(BeTrue())
		Expect(summarizer.Inputs()).To(BeEmpty())
		Expect(store.Calls()).To(BeEmpty())
	})

	It("rejects empty history", func() {
		req := request()
		req.History = "   "
		_, err := pipeline.Run(ctx, req)
		Expect(errors.Is(err, vector.ErrValidation)).To(BeTrue())
	})

	It("fails on an empty summary without storing", func() {
		summarizer.Summary = " "
		_, err := pipeline.Run(ctx, request())
		Expect(err).To(MatchError(summary.ErrEmptySummary))
		Expect(store.CallCount("Insert")).To(BeZero())
		Expect(tracker.Len()).To(BeZero())
	})

	It("surfaces summarizer failures", func() {
		summarizer.Fail = true
		_, err := pipeline.Run(ctx, request())
		Expect(errors.Is(err, testutils.ErrMockSummarizer)).To(BeTrue())
	})

	It("points at migrate on a dimension mismatch", func() {
		embedder.Dim = 5
		_, err := pipeline.Run(ctx, request())
		Expect(errors.Is(err, vector.ErrDimensionMismatch)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("mnemosyne migrate")))
		Expect(tracker.Len()).To(BeZero())
	})

	It("rejects an empty embedding without storing", func() {
		embedder.Empty = "Alice prefers tea."
		_, err := pipeline.Run(ctx, request())
		Expect(errors.Is(err, vector.ErrEmbedding)).To(BeTrue())
		Expect(store.CallCount("Insert")).To(BeZero())
		Expect(tracker.Len()).To(BeZero())
		Expect(publisher.Events()).To(BeEmpty())
	})

	It("surfaces insert failures without touching the session", func() {
		store.FailInsert = true
		_, err := pipeline.Run(ctx, request())
		Expect(errors.Is(err, testutils.ErrMockFailure)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("storing summary")))
		Expect(store.CallCount("Flush")).To(BeZero())
		Expect(tracker.Len()).To(BeZero())
		Expect(publisher.Events()).To(BeEmpty())
	})

	It("keeps the record when the flush fails", func() {
		store.FailFlush = true
		_, err := pipeline.Run(ctx, request())
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Records("memories")).To(HaveLen(1))
	})

	Describe("MaybeRun", func() {
		It("waits a full interval for new sessions", func() {
			_, ran, err := pipeline.MaybeRun(ctx, request(), time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(ran).To(BeFalse())
			Expect(tracker.Len()).To(Equal(1))

			now = now.Add(time.Hour)
			res, ran, err := pipeline.MaybeRun(ctx, request(), time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(ran).To(BeTrue())
			Expect(res.RecordID).NotTo(BeEmpty())

			_, ran, err = pipeline.MaybeRun(ctx, request(), time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(ran).To(BeFalse())
		})
	})
})
