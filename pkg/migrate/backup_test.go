package migrate_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/migrate"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

var _ = Describe("Backup", func() {
	It("names artifacts by collection, widths and time", func() {
		name := migrate.BackupFileName("memories", 768, 1024, time.Unix(42, 0))
		Expect(name).To(Equal("memory_backup_memories_768to1024_42.json"))
	})

	It("leaves no temporary files behind", func() {
		dir := GinkgoT().TempDir()
		path, err := migrate.WriteBackup(dir, &migrate.Backup{
			CollectionName: "memories",
			OldDimension:   2,
			NewDimension:   3,
			Timestamp:      7,
			Records:        []vector.Record{{ID: "a", Content: "x"}},
		})
		Expect(err).NotTo(HaveOccurred())

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(filepath.Join(dir, entries[0].Name())).To(Equal(path))
	})

	It("rejects artifacts whose count does not match", func() {
		path := filepath.Join(GinkgoT().TempDir(), "bad.json")
		Expect(os.WriteFile(path, []byte(`{"collection_name":"m","record_count":2,"records":[]}`), 0o600)).To(Succeed())

		_, err := migrate.ReadBackup(path)
		Expect(err).To(MatchError(vector.ErrValidation))
	})
})
