package mnemosynecmder_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	mnemosynecmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
)

var _ = Describe("mnemosyne", func() {
	var configDir string

	run := func(stdin string, args ...string) (string, error) {
		cmd := mnemosynecmder.NewMnemosyneCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetArgs(append(args, "--config-dir", configDir))
		err := cmd.Execute()
		return out.String(), err
	}

	stack := []string{"--embedding-dimensions", "3"}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
	})

	It("registers every command", func() {
		cmd := mnemosynecmder.NewMnemosyneCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"init", "collections", "records", "forget", "session", "migrate",
			"summarize", "filter", "serve", "logs", "config", "auth", "version",
		))
	})

	Describe("session", func() {
		It("keeps the session until rotated", func() {
			first, err := run("", "session")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(first)).NotTo(BeEmpty())

			again, err := run("", "session")
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(first))

			rotated, err := run("", "session", "new")
			Expect(err).NotTo(HaveOccurred())
			Expect(rotated).NotTo(Equal(first))
		})
	})

	Describe("with a sqlite store", func() {
		It("creates the collection on first migrate", func() {
			out, err := run("", append([]string{"migrate"}, stack...)...)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Created collection"))
			Expect(filepath.Join(configDir, "mnemosyne.sqlite")).To(BeAnExistingFile())

			out, err = run("", append([]string{"migrate"}, stack...)...)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("up to date"))

			out, err = run("", append([]string{"collections", "list"}, stack...)...)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("memories"))
		})

		It("asks for a --force when the width changes", func() {
			_, err := run("", append([]string{"migrate"}, stack...)...)
			Expect(err).NotTo(HaveOccurred())

			out, err := run("", "migrate", "--embedding-dimensions", "4")
			Expect(err).To(MatchError(ContainSubstring("--force")))
			Expect(out).To(ContainSubstring("mnemosyne migrate --force"))
		})

		It("refuses to forget without --confirm", func() {
			_, err := run("", append([]string{"migrate"}, stack...)...)
			Expect(err).NotTo(HaveOccurred())

			out, err := run("", append([]string{"forget", "`chat_42`"}, stack...)...)
			Expect(err).To(MatchError(memory.ErrConfirmationRequired))
			Expect(out).To(ContainSubstring("mnemosyne forget chat_42 --confirm"))

			out, err = run("", append([]string{"forget", "chat_42", "--confirm"}, stack...)...)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("0 memories of chat_42"))
		})

		It("lists an empty collection as json", func() {
			_, err := run("", append([]string{"migrate"}, stack...)...)
			Expect(err).NotTo(HaveOccurred())

			out, err := run("", append([]string{"records", "--all", "--json"}, stack...)...)
			Expect(err).NotTo(HaveOccurred())

			var res memory.ListResult
			Expect(json.Unmarshal([]byte(out), &res)).To(Succeed())
			Expect(res.Records).To(BeEmpty())
		})

		It("reports a missing collection", func() {
			_, err := run("", append([]string{"records", "--all"}, stack...)...)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("config", func() {
		It("round-trips a value through config.toml", func() {
			_, err := run("", "config", "set", "vector_store.collection", "notes")
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(configDir, "config.toml")).To(BeAnExistingFile())

			out, err := run("", "config", "get", "vector_store.collection")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("notes"))
		})
	})

	Describe("filter", func() {
		prompt := `{
			"system_prompt": "<Mnemosyne>a</Mnemosyne><Mnemosyne>b</Mnemosyne>",
			"messages": [
				{"role": "user", "content": "<Mnemosyne>x</Mnemosyne> hi"},
				{"role": "user", "content": "<Mnemosyne>y</Mnemosyne> again"}
			]
		}`

		It("keeps the last k blocks", func() {
			out, err := run(prompt, "filter", "--k", "1")
			Expect(err).NotTo(HaveOccurred())

			var got retention.Prompt
			Expect(json.Unmarshal([]byte(out), &got)).To(Succeed())
			Expect(got.SystemPrompt).To(Equal("<Mnemosyne>b</Mnemosyne>"))
			Expect(got.Messages).To(HaveLen(2))
			Expect(got.Messages[0].Content.Text).To(Equal(" hi"))
			Expect(got.Messages[1].Content.Text).To(Equal("<Mnemosyne>y</Mnemosyne> again"))
		})

		It("uses the configured retention", func() {
			_, err := run("", "config", "set", "memory.retention", "0")
			Expect(err).NotTo(HaveOccurred())

			out, err := run(prompt, "filter")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).NotTo(ContainSubstring("<Mnemosyne>"))
		})

		It("accepts a bare message array from a file", func() {
			path := filepath.Join(configDir, "msgs.json")
			Expect(os.WriteFile(path, []byte(`[{"role":"user","content":"<Mnemosyne>x</Mnemosyne>ok"}]`), 0o644)).To(Succeed())

			out, err := run("", "filter", "--file", path, "--k", "0")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(`"ok"`))
			Expect(out).NotTo(ContainSubstring("<Mnemosyne>"))
		})

		It("rejects malformed input", func() {
			_, err := run("not json", "filter")
			Expect(err).To(MatchError(ContainSubstring("decoding prompt")))
		})
	})
})
