package inmemory

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/strataworks/strata/pkg/vector"
)

var _ = Describe("Provider", func() {
	var (
		provider *Provider
		ctx      context.Context
	)

	BeforeEach(func() {
		provider = NewProvider()
		ctx = context.Background()
	})

	It("returns the same driver for the same collection", func() {
		first, err := provider.Open(ctx, "ent_alice")
		Expect(err).NotTo(HaveOccurred())

		second, err := provider.Open(ctx, "ent_alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(BeIdenticalTo(first))
	})

	It("isolates collections from each other", func() {
		alice, err := provider.Open(ctx, "ent_alice")
		Expect(err).NotTo(HaveOccurred())
		bob, err := provider.Open(ctx, "ent_bob")
		Expect(err).NotTo(HaveOccurred())

		Expect(alice.Add(ctx, []vector.Document{{ID: "1", Embedding: []float32{1, 0}}})).To(Succeed())

		docs, err := bob.Get(ctx, []string{"1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(BeEmpty())
	})
})

var _ = Describe("Driver", func() {
	var (
		driver vector.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		driver, err = NewProvider().Open(context.Background(), "test")
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	add := func(id string, embedding []float32, meta map[string]string) {
		Expect(driver.Add(ctx, []vector.Document{{
			ID:        id,
			Embedding: embedding,
			Metadata:  meta,
		}})).To(Succeed())
	}

	It("ranks by cosine similarity, most similar first", func() {
		add("close", []float32{1, 0.1}, nil)
		add("far", []float32{0, 1}, nil)
		add("exact", []float32{1, 0}, nil)

		results, err := driver.Query(ctx, []float32{1, 0}, nil, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(3))
		Expect(results[0].ID).To(Equal("exact"))
		Expect(results[1].ID).To(Equal("close"))
		Expect(results[2].ID).To(Equal("far"))
	})

	It("truncates to topK", func() {
		for _, id := range []string{"a", "b", "c"} {
			add(id, []float32{1, 0}, nil)
		}

		results, err := driver.Query(ctx, []float32{1, 0}, nil, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
	})

	It("restricts results to matching metadata", func() {
		add("keep", []float32{1, 0}, map[string]string{"topic": "tea"})
		add("drop", []float32{1, 0}, map[string]string{"topic": "space"})

		results, err := driver.Query(ctx, []float32{1, 0}, map[string]string{"topic": "tea"}, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("keep"))
	})

	It("updates a document when its id is re-added", func() {
		add("1", []float32{1, 0}, nil)
		add("1", []float32{0, 1}, nil)

		docs, err := driver.Get(ctx, []string{"1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Embedding).To(Equal([]float32{0, 1}))
	})

	It("omits missing ids from Get", func() {
		add("1", []float32{1, 0}, nil)

		docs, err := driver.Get(ctx, []string{"1", "missing"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
	})

	It("deletes documents", func() {
		add("1", []float32{1, 0}, nil)
		Expect(driver.Delete(ctx, []string{"1"})).To(Succeed())

		results, err := driver.Query(ctx, []float32{1, 0}, nil, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("stores copies, not the caller's slices", func() {
		embedding := []float32{1, 0}
		add("1", embedding, nil)
		embedding[0] = 0

		docs, err := driver.Get(ctx, []string{"1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs[0].Embedding).To(Equal([]float32{1, 0}))
	})

	It("scores mismatched dimensions as zero", func() {
		add("1", []float32{1, 0, 0}, nil)

		results, err := driver.Query(ctx, []float32{1, 0}, nil, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Score).To(BeNumerically("==", 0))
	})
})
