package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/logger"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
	"github.com/papercomputeco/mnemosyne/pkg/vector/sqlitevec"
)

const collection = "mnemosyne_test"

func newDriver() *sqlitevec.Driver {
	driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, logger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return driver
}

func record(content, session string, createTime int64) vector.Record {
	return vector.Record{
		Content:       content,
		Embedding:     []float32{0.1, 0.2, 0.3, 0.4},
		SessionID:     session,
		PersonalityID: "default",
		CreateTime:    createTime,
	}
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *sqlitevec.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	Describe("NewDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ""}, logger.Nop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*sqlitevec.Driver)(nil)
		})
	})

	Describe("Collections", func() {
		It("should report a missing collection", func() {
			ok, err := driver.HasCollection(ctx, collection)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			_, err = driver.DescribeCollection(ctx, collection)
			Expect(err).To(MatchError(vector.ErrNotFound))
		})

		It("should create and describe a collection", func() {
			Expect(driver.CreateCollection(ctx, collection, 4)).To(Succeed())

			ok, err := driver.HasCollection(ctx, collection)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			schema, err := driver.DescribeCollection(ctx, collection)
			Expect(err).NotTo(HaveOccurred())
			dim, err := schema.Dimension()
			Expect(err).NotTo(HaveOccurred())
			Expect(dim).To(Equal(4))
		})

		It("should refuse to create a collection twice", func() {
			Expect(driver.CreateCollection(ctx, collection, 4)).To(Succeed())
			Expect(driver.CreateCollection(ctx, collection, 8)).To(MatchError(vector.ErrAlreadyExists))
		})

		It("should list collections by name", func() {
			Expect(driver.CreateCollection(ctx, "beta", 4)).To(Succeed())
			Expect(driver.CreateCollection(ctx, "alpha", 4)).To(Succeed())

			names, err := driver.ListCollections(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"alpha", "beta"}))
		})

		It("should drop a collection and allow recreating it with a new width", func() {
			Expect(driver.CreateCollection(ctx, collection, 4)).To(Succeed())
			Expect(driver.DropCollection(ctx, collection)).To(Succeed())

			ok, err := driver.HasCollection(ctx, collection)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			Expect(driver.CreateCollection(ctx, collection, 8)).To(Succeed())
			schema, err := driver.DescribeCollection(ctx, collection)
			Expect(err).NotTo(HaveOccurred())
			Expect(schema.Dimension()).To(Equal(8))
		})

		It("should reject unsafe collection names", func() {
			Expect(driver.CreateCollection(ctx, `x"; DROP TABLE y; --`, 4)).To(MatchError(vector.ErrValidation))
		})

		It("should error when dropping a missing collection", func() {
			Expect(driver.DropCollection(ctx, collection)).To(MatchError(vector.ErrNotFound))
		})
	})

	Describe("Records", func() {
		BeforeEach(func() {
			Expect(driver.CreateCollection(ctx, collection, 4)).To(Succeed())
		})

		It("should assign ids on insert", func() {
			ids, err := driver.Insert(ctx, collection, []vector.Record{record("a", "s1", 1)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(HaveLen(1))
			Expect(ids[0]).NotTo(BeEmpty())
		})

		It("should reject embeddings of the wrong width", func() {
			r := record("a", "s1", 1)
			r.Embedding = []float32{1, 2}
			_, err := driver.Insert(ctx, collection, []vector.Record{r})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("should query by session with pagination", func() {
			_, err := driver.Insert(ctx, collection, []vector.Record{
				record("a", "s1", 1),
				record("b", "s2", 2),
				record("c", "s1", 3),
				record("d", "s1", 4),
			})
			Expect(err).NotTo(HaveOccurred())

			f, err := vector.SessionFilter("s1")
			Expect(err).NotTo(HaveOccurred())

			page, err := driver.Query(ctx, collection, vector.Query{Filter: f, Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(page).To(HaveLen(2))
			Expect(page[0].Content).To(Equal("a"))
			Expect(page[1].Content).To(Equal("c"))
			Expect(page[0].Embedding).To(BeNil())

			page, err = driver.Query(ctx, collection, vector.Query{Filter: f, Limit: 2, Offset: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(page).To(HaveLen(1))
			Expect(page[0].Content).To(Equal("d"))
		})

		It("should return embeddings only when requested", func() {
			_, err := driver.Insert(ctx, collection, []vector.Record{record("a", "s1", 1)})
			Expect(err).NotTo(HaveOccurred())

			out, err := driver.Query(ctx, collection, vector.Query{
				Filter:       vector.All(),
				OutputFields: []string{vector.FieldContent, vector.FieldEmbedding},
				Limit:        10,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].Embedding).To(HaveLen(4))
			Expect(out[0].Embedding[0]).To(BeNumerically("~", 0.1, 1e-6))
			Expect(out[0].SessionID).To(BeEmpty())
		})

		It("should filter by create_time lower bound", func() {
			_, err := driver.Insert(ctx, collection, []vector.Record{
				record("old", "s1", 10),
				record("new", "s1", 20),
			})
			Expect(err).NotTo(HaveOccurred())

			f, err := vector.Gte(vector.FieldCreateTime, 15)
			Expect(err).NotTo(HaveOccurred())
			out, err := driver.Query(ctx, collection, vector.Query{Filter: f, Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].Content).To(Equal("new"))
		})

		It("should reject the zero filter and out of range limits", func() {
			_, err := driver.Query(ctx, collection, vector.Query{Limit: 10})
			Expect(err).To(MatchError(vector.ErrValidation))

			_, err = driver.Query(ctx, collection, vector.Query{Filter: vector.All(), Limit: 0})
			Expect(err).To(MatchError(vector.ErrValidation))

			_, err = driver.Query(ctx, collection, vector.Query{Filter: vector.All(), Limit: driver.MaxPageSize() + 1})
			Expect(err).To(MatchError(vector.ErrValidation))
		})

		It("should delete by session and report the count", func() {
			_, err := driver.Insert(ctx, collection, []vector.Record{
				record("a", "s1", 1),
				record("b", "s2", 2),
				record("c", "s1", 3),
			})
			Expect(err).NotTo(HaveOccurred())

			f, err := vector.SessionFilter("s1")
			Expect(err).NotTo(HaveOccurred())
			n, err := driver.Delete(ctx, collection, f)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
			Expect(driver.Flush(ctx, collection)).To(Succeed())

			out, err := driver.Query(ctx, collection, vector.Query{Filter: vector.All(), Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].SessionID).To(Equal("s2"))
		})

		It("should error when querying a missing collection", func() {
			_, err := driver.Query(ctx, "missing", vector.Query{Filter: vector.All(), Limit: 1})
			Expect(err).To(MatchError(vector.ErrNotFound))
		})
	})
})
