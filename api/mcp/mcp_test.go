package mcp_test

import (
	"context"
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/api/mcp"
	"github.com/papercomputeco/mnemosyne/pkg/logger"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/session"
	"github.com/papercomputeco/mnemosyne/pkg/summary"
	testutils "github.com/papercomputeco/mnemosyne/pkg/utils/test"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// connect serves s over an in-memory transport and returns a client session.
func connect(ctx context.Context, s *mcp.Server) *sdk.ClientSession {
	clientT, serverT := sdk.NewInMemoryTransports()
	_, err := s.MCPServer().Connect(ctx, serverT, nil)
	Expect(err).NotTo(HaveOccurred())

	client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(cs.Close)
	return cs
}

func call(ctx context.Context, cs *sdk.ClientSession, name string, args map[string]any, out any) *sdk.CallToolResult {
	res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	Expect(err).NotTo(HaveOccurred())
	if out != nil && !res.IsError {
		data, err := json.Marshal(res.StructuredContent)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, out)).To(Succeed())
	}
	return res
}

func text(res *sdk.CallToolResult) string {
	Expect(res.Content).NotTo(BeEmpty())
	tc, ok := res.Content[0].(*sdk.TextContent)
	Expect(ok).To(BeTrue())
	return tc.Text
}

var _ = Describe("MCP Server", func() {
	var (
		ctx    context.Context
		store  *testutils.MockRecordStore
		svc    *memory.Service
		server *mcp.Server
		cs     *sdk.ClientSession
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = testutils.NewMockRecordStore()
		store.Seed("memories", 3,
			vector.Record{ID: "a", Content: "Bob   likes\ntea", Embedding: []float32{1, 0, 0}, SessionID: "chat_1", CreateTime: 100},
			vector.Record{ID: "b", Content: "Bob has a cat", Embedding: []float32{0, 1, 0}, SessionID: "chat_2", CreateTime: 200},
		)

		pipeline, err := summary.NewPipeline(summary.Config{
			Store:      store,
			Embedder:   testutils.NewMockEmbedder(),
			Summarizer: testutils.NewMockSummarizer("Bob plays chess."),
			Tracker:    session.NewTracker(),
			Collection: "memories",
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		svc, err = memory.NewService(memory.Config{
			Store:      store,
			Collection: "memories",
			Pipeline:   pipeline,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		server, err = mcp.NewServer(mcp.Config{
			Service: svc,
			Budget:  retention.Budget{Blocks: 1, SystemMessages: 1},
			Logger:  logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		cs = connect(ctx, server)
	})

	Describe("NewServer", func() {
		It("returns an error when the service is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("memory service is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Service: svc})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("builds an empty noop server", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
			Expect(noop.MCPServer()).NotTo(BeNil())
		})

		It("registers the memory tools", func() {
			Expect(server.Handler()).NotTo(BeNil())

			tools, err := cs.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			var names []string
			for _, t := range tools.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf(
				"list_collections",
				"list_memories",
				"forget_session",
				"summarize_session",
				"filter_context",
			))
		})
	})

	It("lists collections", func() {
		var view memory.CollectionsView
		res := call(ctx, cs, "list_collections", map[string]any{}, &view)
		Expect(res.IsError).To(BeFalse())
		Expect(view.Collections).To(ConsistOf("memories"))
		Expect(view.ConfiguredExists).To(BeTrue())
	})

	Describe("list_memories", func() {
		It("returns previews newest first", func() {
			var out mcp.ListMemoriesOutput
			res := call(ctx, cs, "list_memories", map[string]any{}, &out)
			Expect(res.IsError).To(BeFalse())
			Expect(out.Count).To(Equal(2))
			Expect(out.Memories[0].ID).To(Equal("b"))
			Expect(out.Memories[1].Preview).To(Equal("Bob likes tea"))
		})

		It("reports validation failures as tool errors", func() {
			res := call(ctx, cs, "list_memories", map[string]any{"limit": 500}, nil)
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(ContainSubstring("limit"))
		})
	})

	Describe("forget_session", func() {
		It("refuses without confirm", func() {
			res := call(ctx, cs, "forget_session", map[string]any{"session_id": "chat_1"}, nil)
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(ContainSubstring("confirm=true"))
			Expect(store.Records("memories")).To(HaveLen(2))
		})

		It("deletes with confirm", func() {
			var out mcp.ForgetSessionOutput
			res := call(ctx, cs, "forget_session", map[string]any{"session_id": "`chat_1`", "confirm": true}, &out)
			Expect(res.IsError).To(BeFalse())
			Expect(out.SessionID).To(Equal("chat_1"))
			Expect(out.Deleted).To(BeEquivalentTo(1))
			Expect(store.Records("memories")).To(HaveLen(1))
		})
	})

	It("summarizes a session into a stored memory", func() {
		var out mcp.SummarizeOutput
		res := call(ctx, cs, "summarize_session", map[string]any{
			"session_id": "chat_7",
			"messages": []map[string]any{
				{"role": "user", "content": "I play chess on Sundays"},
			},
		}, &out)
		Expect(res.IsError).To(BeFalse())
		Expect(out.Summary).To(Equal("Bob plays chess."))
		Expect(store.Records("memories")).To(HaveLen(3))
	})

	Describe("filter_context", func() {
		It("keeps the newest blocks under the configured budget", func() {
			var out mcp.FilterContextOutput
			res := call(ctx, cs, "filter_context", map[string]any{
				"messages": []map[string]any{
					{"role": "user", "content": "<Mnemosyne>A</Mnemosyne>one"},
					{"role": "user", "content": "<Mnemosyne>B</Mnemosyne>two"},
				},
			}, &out)
			Expect(res.IsError).To(BeFalse())
			Expect(out.Messages).To(HaveLen(2))
			Expect(out.Messages[0].Content).To(Equal("one"))
			Expect(out.Messages[1].Content).To(Equal("<Mnemosyne>B</Mnemosyne>two"))
		})

		It("keeps everything with a negative k", func() {
			var out mcp.FilterContextOutput
			call(ctx, cs, "filter_context", map[string]any{
				"k": -1,
				"messages": []map[string]any{
					{"role": "user", "content": "<Mnemosyne>A</Mnemosyne>one"},
					{"role": "user", "content": "<Mnemosyne>B</Mnemosyne>two"},
				},
			}, &out)
			Expect(out.Messages[0].Content).To(Equal("<Mnemosyne>A</Mnemosyne>one"))
		})
	})
})
