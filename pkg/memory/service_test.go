package memory_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
	"github.com/papercomputeco/mnemosyne/pkg/logger"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/migrate"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/session"
	"github.com/papercomputeco/mnemosyne/pkg/summary"
	testutils "github.com/papercomputeco/mnemosyne/pkg/utils/test"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

var _ = Describe("Service", func() {
	var (
		ctx        context.Context
		store      *testutils.MockRecordStore
		embedder   *testutils.MockEmbedder
		publisher  *testutils.MockPublisher
		summarizer *testutils.MockSummarizer
		svc        *memory.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = testutils.NewMockRecordStore()
		store.Seed("memories", 3,
			rec("a", "chat_1", 100),
			rec("b", "chat_2", 200),
			rec("c", "chat_1", 300),
		)
		store.Seed("scratch", 3)
		embedder = testutils.NewMockEmbedder()
		publisher = testutils.NewMockPublisher()
		summarizer = testutils.NewMockSummarizer("Bob is learning Go.")

		migrator, err := migrate.NewEngine(migrate.Config{
			Store:      store,
			Embedder:   embedder,
			Collection: "memories",
			BackupDir:  GinkgoT().TempDir(),
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		pipeline, err := summary.NewPipeline(summary.Config{
			Store:      store,
			Embedder:   embedder,
			Summarizer: summarizer,
			Tracker:    session.NewTracker(),
			Collection: "memories",
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		svc, err = memory.NewService(memory.Config{
			Store:      store,
			Collection: "memories",
			Migrator:   migrator,
			Pipeline:   pipeline,
			Sessions:   memory.SessionSourceFunc(func() (string, error) { return "chat_1", nil }),
			Publisher:  publisher,
			History:    retention.HistoryOptions{AssistantName: "Nova"},
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a valid collection", func() {
		_, err := memory.NewService(memory.Config{Store: store, Collection: "bad name"})
		Expect(errors.Is(err, vector.ErrValidation)).To(BeTrue())
	})

	Describe("ListCollections", func() {
		It("reports whether the configured collection exists", func() {
			view, err := svc.ListCollections(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Collections).To(ConsistOf("memories", "scratch"))
			Expect(view.Configured).To(Equal("memories"))
			Expect(view.ConfiguredExists).To(BeTrue())
		})

		It("surfaces store failures", func() {
			store.FailList = true
			_, err := svc.ListCollections(ctx)
			Expect(errors.Is(err, testutils.ErrMockFailure)).To(BeTrue())
		})
	})

	Describe("DropCollection", func() {
		It("requires confirmation and returns the hint", func() {
			res, err := svc.DropCollection(ctx, "scratch", false)
			Expect(errors.Is(err, memory.ErrConfirmationRequired)).To(BeTrue())
			Expect(res.Hint).To(Equal("mnemosyne collections drop scratch --confirm"))
			Expect(store.MutatingCalls()).To(BeZero())
		})

		It("drops and publishes", func() {
			res, err := svc.DropCollection(ctx, "scratch", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Dropped).To(BeTrue())
			Expect(res.WasConfigured).To(BeFalse())
			Expect(publisher.EventTypes()).To(Equal([]string{eventstream.EventTypeCollectionDropped}))
		})

		It("flags the configured collection", func() {
			res, err := svc.DropCollection(ctx, "memories", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.WasConfigured).To(BeTrue())
			Expect(store.Records("memories")).To(BeEmpty())
		})

		It("returns not found for unknown collections", func() {
			_, err := svc.DropCollection(ctx, "ghost", true)
			Expect(errors.Is(err, vector.ErrNotFound)).To(BeTrue())
			Expect(store.CallCount("DropCollection")).To(BeZero())
		})
	})

	Describe("ListLatest", func() {
		It("defaults to the configured collection", func() {
			res, err := svc.ListLatest(ctx, "", "chat_1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Collection).To(Equal("memories"))
			Expect(ids(res.Records)).To(Equal([]string{"c", "a"}))
		})

		It("strips quotes from the session id", func() {
			res, err := svc.ListLatest(ctx, "", "`chat_2`", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(res.Records)).To(Equal([]string{"b"}))
		})
	})

	Describe("DeleteSession", func() {
		It("validates before asking for confirmation", func() {
			_, err := svc.DeleteSession(ctx, "abc; DROP", false)
			Expect(errors.Is(err, vector.ErrValidation)).To(BeTrue())
			Expect(store.Calls()).To(BeEmpty())
		})

		It("requires confirmation", func() {
			res, err := svc.DeleteSession(ctx, `"chat_1"`, false)
			Expect(errors.Is(err, memory.ErrConfirmationRequired)).To(BeTrue())
			Expect(res.Hint).To(Equal("mnemosyne forget chat_1 --confirm"))
			Expect(store.MutatingCalls()).To(BeZero())
		})

		It("deletes, flushes and publishes", func() {
			res, err := svc.DeleteSession(ctx, "'chat_1'", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Deleted).To(Equal(int64(2)))
			Expect(res.FlushErr).NotTo(HaveOccurred())
			Expect(ids(store.Records("memories"))).To(Equal([]string{"b"}))
			Expect(store.CallCount("Flush")).To(Equal(1))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeSessionDeleted))
			Expect(events[0].SessionID).To(Equal("chat_1"))
			Expect(events[0].Count).To(Equal(int64(2)))
		})

		It("reports a flush failure without reverting the delete", func() {
			store.FailFlush = true
			res, err := svc.DeleteSession(ctx, "chat_1", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Deleted).To(Equal(int64(2)))
			Expect(errors.Is(res.FlushErr, testutils.ErrMockFailure)).To(BeTrue())
			Expect(res.FlushError).NotTo(BeEmpty())
			Expect(store.Records("memories")).To(HaveLen(1))
		})

		It("fails when the delete fails", func() {
			store.FailDelete = true
			_, err := svc.DeleteSession(ctx, "chat_1", true)
			Expect(errors.Is(err, testutils.ErrMockFailure)).To(BeTrue())
			Expect(store.CallCount("Flush")).To(BeZero())
		})
	})

	It("returns the current session id", func() {
		id, err := svc.SessionID()
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("chat_1"))
	})

	Describe("Migrate", func() {
		It("is a no-op when widths match", func() {
			report, err := svc.Migrate(ctx, false, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(migrate.StatusUpToDate))
			Expect(store.MutatingCalls()).To(BeZero())
		})

		It("asks for confirmation on a mismatch and rebuilds when forced", func() {
			embedder.Dim = 4
			report, err := svc.Migrate(ctx, false, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(migrate.StatusNeedsConfirmation))

			report, err = svc.Migrate(ctx, true, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(migrate.StatusCompleted))
			Expect(report.Succeeded).To(Equal(int64(3)))
			for _, r := range store.Records("memories") {
				Expect(r.Embedding).To(HaveLen(4))
			}
		})
	})

	Describe("DebugSummary", func() {
		It("formats history and stores one memory", func() {
			history := []retention.Message{
				retention.NewTextMessage(retention.RoleSystem, "be nice"),
				retention.NewTextMessage(retention.RoleUser, "I'm learning Go"),
				retention.NewTextMessage(retention.RoleAssistant, "Great choice"),
			}
			res, err := svc.DebugSummary(ctx, "chat_3", "tutor", history)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary).To(Equal("Bob is learning Go."))
			Expect(res.SessionID).To(Equal("chat_3"))

			Expect(summarizer.Inputs()).To(HaveLen(1))
			Expect(summarizer.Inputs()[0]).To(ContainSubstring("User: I'm learning Go"))
			Expect(summarizer.Inputs()[0]).To(ContainSubstring("Nova: Great choice"))
			Expect(summarizer.Inputs()[0]).NotTo(ContainSubstring("be nice"))
			Expect(store.Records("memories")).To(HaveLen(4))
		})

		It("needs a pipeline", func() {
			bare, err := memory.NewService(memory.Config{Store: store, Collection: "memories", Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			_, err = bare.DebugSummary(ctx, "chat_3", "", nil)
			Expect(errors.Is(err, memory.ErrNotConfigured)).To(BeTrue())
			_, err = bare.Migrate(ctx, false, nil)
			Expect(errors.Is(err, memory.ErrNotConfigured)).To(BeTrue())
			_, err = bare.SessionID()
			Expect(errors.Is(err, memory.ErrNotConfigured)).To(BeTrue())
		})
	})

	Describe("ObserveTurn", func() {
		history := []retention.Message{
			retention.NewTextMessage(retention.RoleUser, "I moved to Lisbon"),
		}

		It("summarizes every turn with a zero interval", func() {
			res, ran, err := svc.ObserveTurn(ctx, "chat_4", "", history)
			Expect(err).NotTo(HaveOccurred())
			Expect(ran).To(BeTrue())
			Expect(res.SessionID).To(Equal("chat_4"))
		})

		It("makes a new session wait a full interval", func() {
			pipeline, err := summary.NewPipeline(summary.Config{
				Store:      store,
				Embedder:   embedder,
				Summarizer: summarizer,
				Tracker:    session.NewTracker(),
				Collection: "memories",
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())
			gated, err := memory.NewService(memory.Config{
				Store:           store,
				Collection:      "memories",
				Pipeline:        pipeline,
				SummaryInterval: time.Hour,
				Logger:          logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			res, ran, err := gated.ObserveTurn(ctx, "chat_4", "", history)
			Expect(err).NotTo(HaveOccurred())
			Expect(ran).To(BeFalse())
			Expect(res).To(BeNil())
			Expect(summarizer.Inputs()).To(BeEmpty())
		})
	})
})
