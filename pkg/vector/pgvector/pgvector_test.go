package pgvector_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/logger"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
	"github.com/papercomputeco/mnemosyne/pkg/vector/pgvector"
)

// dsn returns the PostgreSQL connection string from environment or skips the test.
func dsn() string {
	v := os.Getenv("MNEMOSYNE_TEST_POSTGRES_DSN")
	if v == "" {
		Skip("MNEMOSYNE_TEST_POSTGRES_DSN not set, skipping pgvector tests")
	}
	return v
}

var _ = Describe("Driver", func() {
	const name = "mnemosyne_pg_test"

	var (
		ctx    context.Context
		driver *pgvector.Driver
	)

	It("should implement vector.Driver interface", func() {
		var _ vector.Driver = (*pgvector.Driver)(nil)
	})

	It("should require a DSN", func() {
		_, err := pgvector.NewDriver(context.Background(), pgvector.Config{}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("postgres DSN is required")))
	})

	Context("against a live database", func() {
		BeforeEach(func() {
			ctx = context.Background()
			conn := dsn()

			var err error
			driver, err = pgvector.NewDriver(ctx, pgvector.Config{DSN: conn}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			if ok, _ := driver.HasCollection(ctx, name); ok {
				Expect(driver.DropCollection(ctx, name)).To(Succeed())
			}
			Expect(driver.CreateCollection(ctx, name, 3)).To(Succeed())
		})

		AfterEach(func() {
			if driver != nil {
				_ = driver.DropCollection(ctx, name)
				driver.Close()
			}
		})

		It("should describe the created dimension", func() {
			schema, err := driver.DescribeCollection(ctx, name)
			Expect(err).NotTo(HaveOccurred())
			Expect(schema.Dimension()).To(Equal(3))
			Expect(driver.CreateCollection(ctx, name, 3)).To(MatchError(vector.ErrAlreadyExists))
		})

		It("should round trip embeddings and delete by session", func() {
			_, err := driver.Insert(ctx, name, []vector.Record{
				{Content: "a", Embedding: []float32{1, 2, 3}, SessionID: "s1", CreateTime: 1},
				{Content: "b", Embedding: []float32{4, 5, 6}, SessionID: "s2", CreateTime: 2},
			})
			Expect(err).NotTo(HaveOccurred())

			out, err := driver.Query(ctx, name, vector.Query{
				Filter:       vector.All(),
				OutputFields: []string{vector.FieldContent, vector.FieldEmbedding},
				Limit:        10,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))
			Expect(out[0].Embedding).To(Equal([]float32{1, 2, 3}))

			f, err := vector.SessionFilter("s1")
			Expect(err).NotTo(HaveOccurred())
			n, err := driver.Delete(ctx, name, f)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})
	})
})
