package search

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/layer"
	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/memory/crypto"
	storageinmemory "github.com/strataworks/strata/pkg/storage/inmemory"
	testutils "github.com/strataworks/strata/pkg/utils/test"
	vectorinmemory "github.com/strataworks/strata/pkg/vector/inmemory"
)

var _ = Describe("Coordinator", func() {
	var (
		registry *layer.Registry
		codec    *crypto.Codec
		embedder *testutils.MockEmbedder
		coord    *Coordinator
		ctx      context.Context
	)

	BeforeEach(func() {
		var err error
		codec, err = crypto.NewCodec(bytes.Repeat([]byte{0x42}, crypto.KeySize))
		Expect(err).NotTo(HaveOccurred())

		logger, _ := zap.NewDevelopment()
		registry, err = layer.NewRegistry(vectorinmemory.NewProvider(), storageinmemory.NewDriver(), codec, logger)
		Expect(err).NotTo(HaveOccurred())

		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["tea"] = []float32{1, 0, 0}

		coord = NewCoordinator(registry, embedder, logger)
		ctx = context.Background()
	})

	put := func(scope memory.Scope, text string, embedding []float32, createdAt time.Time) *memory.Item {
		item := memory.NewItem(
			memory.Content{Text: text, Confidence: 1.0},
			embedding, scope, memory.PriorityNormal, memory.FederationDisabled,
		)
		if !createdAt.IsZero() {
			item.CreatedAt = createdAt
		}

		enc, err := codec.Encrypt(item)
		Expect(err).NotTo(HaveOccurred())

		store, err := registry.Get(ctx, scope)
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Put(ctx, enc, nil)
		Expect(err).NotTo(HaveOccurred())
		return item
	}

	It("requires at least one scope", func() {
		_, err := coord.Search(ctx, "tea", nil, nil, 10)
		Expect(err).To(HaveOccurred())
	})

	It("merges scopes into one ranking by similarity", func() {
		alice := memory.EntityScope("alice")
		rel := memory.RelationScope("alice", "bob")

		put(alice, "loves tea", []float32{1, 0, 0}, time.Time{})
		put(rel, "talked about space", []float32{0, 1, 0}, time.Time{})

		results, err := coord.Search(ctx, "tea", []memory.Scope{alice, rel}, nil, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Item.Payload.Text).To(Equal("loves tea"))
	})

	It("never returns items from scopes that were not requested", func() {
		alice := memory.EntityScope("alice")
		bob := memory.EntityScope("bob")

		put(alice, "alice memory", []float32{1, 0, 0}, time.Time{})
		put(bob, "bob memory", []float32{1, 0, 0}, time.Time{})

		results, err := coord.Search(ctx, "tea", []memory.Scope{alice}, nil, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Item.Payload.Text).To(Equal("alice memory"))
	})

	It("breaks score ties by recency", func() {
		alice := memory.EntityScope("alice")
		now := time.Now().UTC()

		put(alice, "older", []float32{1, 0, 0}, now.Add(-time.Hour))
		put(alice, "newer", []float32{1, 0, 0}, now)

		results, err := coord.Search(ctx, "tea", []memory.Scope{alice}, nil, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Item.Payload.Text).To(Equal("newer"))
	})

	It("truncates to the requested limit", func() {
		alice := memory.EntityScope("alice")
		for range 5 {
			put(alice, "note", []float32{1, 0, 0}, time.Time{})
		}

		results, err := coord.Search(ctx, "tea", []memory.Scope{alice}, nil, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(3))
	})

	It("applies metadata filters", func() {
		alice := memory.EntityScope("alice")

		keep := memory.NewItem(
			memory.Content{Text: "keep", Meta: map[string]string{"topic": "tea"}, Confidence: 1.0},
			[]float32{1, 0, 0}, alice, memory.PriorityNormal, memory.FederationDisabled,
		)
		drop := memory.NewItem(
			memory.Content{Text: "drop", Meta: map[string]string{"topic": "space"}, Confidence: 1.0},
			[]float32{1, 0, 0}, alice, memory.PriorityNormal, memory.FederationDisabled,
		)

		store, err := registry.Get(ctx, alice)
		Expect(err).NotTo(HaveOccurred())

		for _, item := range []*memory.Item{keep, drop} {
			enc, err := codec.Encrypt(item)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Put(ctx, enc, item.Payload.Metadata())
			Expect(err).NotTo(HaveOccurred())
		}

		results, err := coord.Search(ctx, "tea", []memory.Scope{alice},
			map[string]string{"topic": "tea"}, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Item.Payload.Text).To(Equal("keep"))
	})

	It("fails when the embedder fails", func() {
		embedder.FailOn = "tea"

		_, err := coord.Search(ctx, "tea", []memory.Scope{memory.EntityScope("alice")}, nil, 10)
		Expect(err).To(HaveOccurred())
	})
})
