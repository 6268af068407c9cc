package dotdir_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/dotdir"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

var _ = Describe("Manager sessions", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		m = dotdir.NewManager()
	})

	It("returns nil when no session exists", func() {
		state, err := m.LoadSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("mints a session on first use and keeps it", func() {
		first, err := m.CurrentSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.HasPrefix(first.ID, "cli_")).To(BeTrue())
		Expect(vector.ValidateSessionID(first.ID)).To(Succeed())

		again, err := m.CurrentSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.ID).To(Equal(first.ID))
	})

	It("replaces the session with NewSession", func() {
		first, err := m.CurrentSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		next, err := m.NewSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(next.ID).NotTo(Equal(first.ID))

		loaded, err := m.LoadSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.ID).To(Equal(next.ID))
	})

	It("rejects corrupt state", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte("{"), 0o600)).To(Succeed())
		_, err := m.LoadSession(tmpDir)
		Expect(err).To(MatchError(ContainSubstring("parsing session state")))
	})

	It("refuses to save nil", func() {
		Expect(m.SaveSession(nil, tmpDir)).To(MatchError(ContainSubstring("nil session state")))
	})
})
