package chromem_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/logger"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
	"github.com/papercomputeco/mnemosyne/pkg/vector/chromem"
)

var _ = Describe("Driver", func() {
	const name = "memories"

	var (
		ctx    context.Context
		driver *chromem.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		driver, err = chromem.NewDriver(chromem.Config{}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	It("should implement vector.Driver interface", func() {
		var _ vector.Driver = (*chromem.Driver)(nil)
	})

	It("should hide the catalog from listings", func() {
		Expect(driver.CreateCollection(ctx, name, 2)).To(Succeed())

		names, err := driver.ListCollections(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(names).To(Equal([]string{name}))
	})

	It("should reject the reserved catalog name", func() {
		Expect(driver.CreateCollection(ctx, chromem.CatalogCollection, 2)).To(MatchError(vector.ErrValidation))
	})

	It("should describe the cataloged dimension", func() {
		Expect(driver.CreateCollection(ctx, name, 5)).To(Succeed())

		schema, err := driver.DescribeCollection(ctx, name)
		Expect(err).NotTo(HaveOccurred())
		Expect(schema.Dimension()).To(Equal(5))

		Expect(driver.CreateCollection(ctx, name, 5)).To(MatchError(vector.ErrAlreadyExists))
	})

	It("should drop a collection and its catalog entry", func() {
		Expect(driver.CreateCollection(ctx, name, 2)).To(Succeed())
		Expect(driver.DropCollection(ctx, name)).To(Succeed())

		ok, err := driver.HasCollection(ctx, name)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(driver.CreateCollection(ctx, name, 3)).To(Succeed())
	})

	Context("with records", func() {
		BeforeEach(func() {
			Expect(driver.CreateCollection(ctx, name, 2)).To(Succeed())
			_, err := driver.Insert(ctx, name, []vector.Record{
				{ID: "c", Content: "third", Embedding: []float32{1, 1}, SessionID: "s1", CreateTime: 30},
				{ID: "a", Content: "first", Embedding: []float32{1, 0}, SessionID: "s1", CreateTime: 10},
				{ID: "b", Content: "second", Embedding: []float32{0, 1}, SessionID: "s2", CreateTime: 20},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should page through all records in create_time order", func() {
			page, err := driver.Query(ctx, name, vector.Query{Filter: vector.All(), Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(page).To(HaveLen(2))
			Expect(page[0].ID).To(Equal("a"))
			Expect(page[1].ID).To(Equal("b"))

			page, err = driver.Query(ctx, name, vector.Query{Filter: vector.All(), Limit: 2, Offset: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(page).To(HaveLen(1))
			Expect(page[0].ID).To(Equal("c"))
			Expect(page[0].CreateTime).To(Equal(int64(30)))
		})

		It("should push session equality down", func() {
			f, err := vector.SessionFilter("s1")
			Expect(err).NotTo(HaveOccurred())
			out, err := driver.Query(ctx, name, vector.Query{Filter: f, Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))
		})

		It("should evaluate lower bounds in memory", func() {
			f, err := vector.Gte(vector.FieldCreateTime, 20)
			Expect(err).NotTo(HaveOccurred())
			out, err := driver.Query(ctx, name, vector.Query{Filter: f, Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))
			Expect(out[0].ID).To(Equal("b"))
		})

		It("should look up a single id", func() {
			f, err := vector.Eq(vector.FieldID, "b")
			Expect(err).NotTo(HaveOccurred())
			out, err := driver.Query(ctx, name, vector.Query{Filter: f, Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].Content).To(Equal("second"))
		})

		It("should delete a session and count the removals", func() {
			f, err := vector.SessionFilter("s1")
			Expect(err).NotTo(HaveOccurred())
			n, err := driver.Delete(ctx, name, f)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
			Expect(driver.Flush(ctx, name)).To(Succeed())

			out, err := driver.Query(ctx, name, vector.Query{Filter: vector.All(), Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
		})
	})
})
