package layer

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/memory/crypto"
	storageinmemory "github.com/strataworks/strata/pkg/storage/inmemory"
	vectorinmemory "github.com/strataworks/strata/pkg/vector/inmemory"
)

func newTestRegistry() *Registry {
	codec, err := crypto.NewCodec(bytes.Repeat([]byte{0x42}, crypto.KeySize))
	Expect(err).NotTo(HaveOccurred())

	logger, _ := zap.NewDevelopment()

	registry, err := NewRegistry(vectorinmemory.NewProvider(), storageinmemory.NewDriver(), codec, logger)
	Expect(err).NotTo(HaveOccurred())

	return registry
}

var _ = Describe("Registry", func() {
	var (
		registry *Registry
		ctx      context.Context
	)

	BeforeEach(func() {
		registry = newTestRegistry()
		ctx = context.Background()
	})

	It("requires all dependencies", func() {
		_, err := NewRegistry(nil, nil, nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("returns the same store for the same scope value", func() {
		a, err := registry.Get(ctx, memory.EntityScope("alice"))
		Expect(err).NotTo(HaveOccurred())

		b, err := registry.Get(ctx, memory.EntityScope("alice"))
		Expect(err).NotTo(HaveOccurred())

		Expect(a).To(BeIdenticalTo(b))
	})

	It("returns the same store for both relation orderings", func() {
		ab, err := registry.Get(ctx, memory.RelationScope("alice", "bob"))
		Expect(err).NotTo(HaveOccurred())

		ba, err := registry.Get(ctx, memory.RelationScope("bob", "alice"))
		Expect(err).NotTo(HaveOccurred())

		Expect(ab).To(BeIdenticalTo(ba))
	})

	It("returns distinct stores for distinct scopes", func() {
		alice, err := registry.Get(ctx, memory.EntityScope("alice"))
		Expect(err).NotTo(HaveOccurred())

		bob, err := registry.Get(ctx, memory.EntityScope("bob"))
		Expect(err).NotTo(HaveOccurred())

		Expect(alice).NotTo(BeIdenticalTo(bob))
	})

	It("rejects invalid scopes", func() {
		_, err := registry.Get(ctx, memory.Scope{})
		Expect(err).To(HaveOccurred())
	})

	It("reports full health when no stores are open", func() {
		Expect(registry.Health(ctx)).To(Equal(1.0))
	})

	It("reports full health with healthy open stores", func() {
		_, err := registry.Get(ctx, memory.EntityScope("alice"))
		Expect(err).NotTo(HaveOccurred())

		Expect(registry.Health(ctx)).To(Equal(1.0))
	})
})
