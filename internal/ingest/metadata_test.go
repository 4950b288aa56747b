package ingest_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/DrGermanius/buyback/internal/ingest"
)

var _ = Describe("FileMetadata", func() {
	var (
		dir   string
		path  string
		store *ingest.FileMetadata
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "metadata")
		Expect(err).ShouldNot(HaveOccurred())

		path = filepath.Join(dir, "fileMetadata.json")
		store = ingest.NewFileMetadata(path)
	})
	AfterEach(func() {
		Expect(os.RemoveAll(dir)).Should(Succeed())
	})

	It("reads an empty mapping when the file is missing", func() {
		m, err := store.ReadAll()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(m).Should(BeEmpty())
	})

	It("writes the first-seen timestamp once", func() {
		first := time.Date(2025, time.April, 14, 10, 0, 0, 0, time.UTC)
		Expect(store.MarkFirstSeen("a.csv", first)).Should(Succeed())
		Expect(store.MarkFirstSeen("a.csv", first.Add(time.Hour))).Should(Succeed())

		m, err := store.ReadAll()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(m).Should(HaveKeyWithValue("a.csv", "2025-04-14T10:00:00Z"))
	})

	It("persists across instances", func() {
		Expect(store.MarkFirstSeen("a.csv", time.Now())).Should(Succeed())

		m, err := ingest.NewFileMetadata(path).ReadAll()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(m).Should(HaveKey("a.csv"))
	})

	It("deletes entries", func() {
		Expect(store.WriteAll(map[string]string{"a.csv": "x", "b.csv": "y"})).Should(Succeed())
		Expect(store.Delete("a.csv")).Should(Succeed())
		Expect(store.Delete("missing.csv")).Should(Succeed())

		m, err := store.ReadAll()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(m).Should(Equal(map[string]string{"b.csv": "y"}))
	})

	It("reports a corrupt document", func() {
		Expect(os.WriteFile(path, []byte("{"), 0o644)).Should(Succeed())
		_, err := store.ReadAll()
		Expect(err).Should(HaveOccurred())
	})
})
