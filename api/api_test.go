package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/logger"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/migrate"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/session"
	"github.com/papercomputeco/mnemosyne/pkg/summary"
	testutils "github.com/papercomputeco/mnemosyne/pkg/utils/test"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

func rec(id, sessionID string, createTime int64) vector.Record {
	return vector.Record{
		ID:         id,
		Content:    "memory " + id,
		Embedding:  []float32{1, 0, 0},
		SessionID:  sessionID,
		CreateTime: createTime,
	}
}

func do(server *Server, method, target, body string) (*http.Response, []byte) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := server.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, data
}

var _ = Describe("Server", func() {
	var (
		server   *Server
		store    *testutils.MockRecordStore
		embedder *testutils.MockEmbedder
		tracker  *session.Tracker
	)

	BeforeEach(func() {
		store = testutils.NewMockRecordStore()
		store.Seed("memories", 3,
			rec("a", "chat_1", 100),
			rec("b", "chat_2", 300),
			rec("c", "chat_1", 200),
		)
		embedder = testutils.NewMockEmbedder()
		tracker = session.NewTracker()

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
			Summarizer: testutils.NewMockSummarizer("Bob likes tea."),
			Tracker:    tracker,
			Collection: "memories",
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		svc, err := memory.NewService(memory.Config{
			Store:      store,
			Collection: "memories",
			Migrator:   migrator,
			Pipeline:   pipeline,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		server = NewServer(Config{
			ListenAddr: ":0",
			Budget:     retention.Budget{Blocks: 1, SystemMessages: 1},
			Tracker:    tracker,
		}, svc, logger.Nop())
	})

	It("answers ping", func() {
		resp, body := do(server, http.MethodGet, "/ping", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	It("serves prometheus metrics", func() {
		resp, body := do(server, http.MethodGet, "/metrics", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(string(body)).To(ContainSubstring("go_goroutines"))
	})

	It("answers 503 for operations the service was built without", func() {
		bare, err := memory.NewService(memory.Config{Store: store, Collection: "memories", Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		s := NewServer(Config{DisableMetrics: true}, bare, logger.Nop())

		resp, _ := do(s, http.MethodPost, "/v1/migrate", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
	})

	It("renders unknown routes as an error response", func() {
		resp, body := do(server, http.MethodGet, "/v1/nope", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))

		var e ErrorResponse
		Expect(json.Unmarshal(body, &e)).To(Succeed())
		Expect(e.Error).NotTo(BeEmpty())
	})

	Describe("collections", func() {
		It("lists collections with the configured one flagged", func() {
			resp, body := do(server, http.MethodGet, "/v1/collections", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var view memory.CollectionsView
			Expect(json.Unmarshal(body, &view)).To(Succeed())
			Expect(view.Collections).To(ConsistOf("memories"))
			Expect(view.ConfiguredExists).To(BeTrue())
		})

		It("requires confirm=true to drop", func() {
			resp, body := do(server, http.MethodDelete, "/v1/collections/memories", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))

			var e ErrorResponse
			Expect(json.Unmarshal(body, &e)).To(Succeed())
			Expect(e.Hint).To(Equal("mnemosyne collections drop memories --confirm"))
			Expect(store.CallCount("DropCollection")).To(BeZero())
		})

		It("drops with confirm=true", func() {
			resp, body := do(server, http.MethodDelete, "/v1/collections/memories?confirm=true", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var res memory.DropResult
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Dropped).To(BeTrue())
			Expect(res.WasConfigured).To(BeTrue())
		})

		It("returns 404 for a missing collection", func() {
			resp, _ := do(server, http.MethodDelete, "/v1/collections/ghost?confirm=true", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("returns 400 for an invalid name", func() {
			resp, _ := do(server, http.MethodDelete, "/v1/collections/bad-name?confirm=true", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("records", func() {
		It("lists the newest records first", func() {
			resp, body := do(server, http.MethodGet, "/v1/records?limit=2", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var res memory.ListResult
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Collection).To(Equal("memories"))
			Expect(res.Records).To(HaveLen(2))
			Expect(res.Records[0].ID).To(Equal("b"))
			Expect(res.Records[1].ID).To(Equal("c"))
		})

		It("narrows to a session", func() {
			_, body := do(server, http.MethodGet, "/v1/records?session=chat_1", "")

			var res memory.ListResult
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Records).To(HaveLen(2))
			for _, r := range res.Records {
				Expect(r.SessionID).To(Equal("chat_1"))
			}
		})

		DescribeTable("rejects bad limits",
			func(limit string) {
				resp, _ := do(server, http.MethodGet, "/v1/records?limit="+limit, "")
				Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
				Expect(store.CallCount("Query")).To(BeZero())
			},
			Entry("zero", "0"),
			Entry("too large", "51"),
			Entry("not a number", "ten"),
		)
	})

	Describe("sessions", func() {
		It("requires confirm=true to delete", func() {
			resp, _ := do(server, http.MethodDelete, "/v1/sessions/chat_1", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
			Expect(store.Records("memories")).To(HaveLen(3))
		})

		It("deletes a session's records", func() {
			resp, body := do(server, http.MethodDelete, "/v1/sessions/chat_1?confirm=true", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var res memory.DeleteResult
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Deleted).To(BeEquivalentTo(2))
			Expect(store.Records("memories")).To(HaveLen(1))
		})

		It("maps store failures to 500", func() {
			store.FailDelete = true
			resp, body := do(server, http.MethodDelete, "/v1/sessions/chat_1?confirm=true", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
			Expect(string(body)).To(ContainSubstring("mock record store failure"))
		})

		It("lists tracked sessions", func() {
			tracker.Ensure("chat_9")
			_, body := do(server, http.MethodGet, "/v1/sessions", "")

			var res SessionsResponse
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Count).To(Equal(1))
			Expect(res.Sessions[0].SessionID).To(Equal("chat_9"))
		})
	})

	Describe("migrate", func() {
		It("reports an up to date collection", func() {
			resp, body := do(server, http.MethodPost, "/v1/migrate", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var report migrate.Report
			Expect(json.Unmarshal(body, &report)).To(Succeed())
			Expect(report.Status).To(Equal(migrate.StatusUpToDate))
		})

		It("answers 409 when the width changed and force is not set", func() {
			embedder.Dim = 4
			resp, body := do(server, http.MethodPost, "/v1/migrate", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))

			var report migrate.Report
			Expect(json.Unmarshal(body, &report)).To(Succeed())
			Expect(report.Status).To(Equal(migrate.StatusNeedsConfirmation))
			Expect(store.MutatingCalls()).To(BeZero())
		})

		It("rebuilds with force=true", func() {
			embedder.Dim = 4
			resp, body := do(server, http.MethodPost, "/v1/migrate?force=true", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var report migrate.Report
			Expect(json.Unmarshal(body, &report)).To(Succeed())
			Expect(report.Status).To(Equal(migrate.StatusCompleted))
			Expect(report.Succeeded).To(BeEquivalentTo(3))
		})
	})

	Describe("summarize", func() {
		It("stores a summary of the posted history", func() {
			resp, body := do(server, http.MethodPost, "/v1/summarize",
				`{"session_id":"chat_3","messages":[{"role":"user","content":"I like tea"}]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			var res summary.Result
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Summary).To(Equal("Bob likes tea."))
			Expect(res.SessionID).To(Equal("chat_3"))
			Expect(store.Records("memories")).To(HaveLen(4))
			Expect(tracker.Len()).To(Equal(1))
		})

		It("rejects a malformed body", func() {
			resp, _ := do(server, http.MethodPost, "/v1/summarize", `{"session_id":`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects a bad session id", func() {
			resp, _ := do(server, http.MethodPost, "/v1/summarize",
				`{"session_id":"x\"; drop","messages":[{"role":"user","content":"hi"}]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("turn", func() {
		It("summarizes a due session", func() {
			resp, body := do(server, http.MethodPost, "/v1/turn",
				`{"session_id":"chat_5","messages":[{"role":"user","content":"hello"}]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var res TurnResponse
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Summarized).To(BeTrue())
			Expect(res.Result.SessionID).To(Equal("chat_5"))
		})
	})

	Describe("filter", func() {
		It("applies the configured budget", func() {
			resp, body := do(server, http.MethodPost, "/v1/filter", `{
				"system_prompt": "sys <Mnemosyne>A</Mnemosyne><Mnemosyne>B</Mnemosyne>",
				"messages": [
					{"role": "system", "content": "old"},
					{"role": "user", "content": "<Mnemosyne>A</Mnemosyne> hi"},
					{"role": "system", "content": "new"},
					{"role": "user", "content": "<Mnemosyne>C</Mnemosyne> there"}
				]
			}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out retention.Prompt
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.SystemPrompt).To(Equal("sys <Mnemosyne>B</Mnemosyne>"))
			Expect(out.Messages).To(HaveLen(3))
			Expect(out.Messages[0].Content.Text).To(Equal(" hi"))
			Expect(out.Messages[1].Content.Text).To(Equal("new"))
			Expect(out.Messages[2].Content.Text).To(Equal("<Mnemosyne>C</Mnemosyne> there"))
		})

		It("honors an explicit k", func() {
			_, body := do(server, http.MethodPost, "/v1/filter", `{
				"k": 0,
				"messages": [{"role": "user", "content": "<Mnemosyne>A</Mnemosyne>hi"}]
			}`)

			var out retention.Prompt
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Messages[0].Content.Text).To(Equal("hi"))
		})

		It("returns tool-call messages unchanged", func() {
			_, body := do(server, http.MethodPost, "/v1/filter", `{
				"k": 0,
				"messages": [
					{"role": "assistant", "content": null, "tool_calls": [{"id": "c1", "type": "function"}]},
					{"role": "tool", "tool_call_id": "c1", "content": "ok", "created_at": 1700000000}
				]
			}`)
			Expect(body).To(MatchJSON(`{"messages": [
				{"role": "assistant", "content": null, "tool_calls": [{"id": "c1", "type": "function"}]},
				{"role": "tool", "tool_call_id": "c1", "content": "ok", "created_at": 1700000000}
			]}`))
		})
	})
})
