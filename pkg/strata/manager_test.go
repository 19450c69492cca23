package strata_test

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/consent"
	"github.com/strataworks/strata/pkg/federation"
	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/memory/crypto"
	storageinmemory "github.com/strataworks/strata/pkg/storage/inmemory"
	"github.com/strataworks/strata/pkg/strata"
	testutils "github.com/strataworks/strata/pkg/utils/test"
	vectorinmemory "github.com/strataworks/strata/pkg/vector/inmemory"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, crypto.KeySize)
}

func goodConsent() *consent.MutualConsent {
	return &consent.MutualConsent{
		AgentA:     "alice",
		AgentB:     "bob",
		ConsentA:   true,
		ConsentB:   true,
		TrustLevel: 0.9,
	}
}

var _ = Describe("Manager", func() {
	var (
		embedder *testutils.MockEmbedder
		manager  *strata.Manager
		ctx      context.Context
	)

	newManager := func(cfg strata.Config) *strata.Manager {
		if cfg.Key == nil {
			cfg.Key = testKey(0x42)
		}
		if cfg.Storage == nil {
			cfg.Storage = storageinmemory.NewDriver()
		}
		if cfg.VectorProvider == nil {
			cfg.VectorProvider = vectorinmemory.NewProvider()
		}
		if cfg.Embedder == nil {
			cfg.Embedder = embedder
		}
		if cfg.Logger == nil {
			cfg.Logger, _ = zap.NewDevelopment()
		}

		m, err := strata.NewManager(cfg)
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	BeforeEach(func() {
		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["loves tea"] = []float32{1, 0, 0}
		embedder.Embeddings["tea"] = []float32{1, 0, 0}
		embedder.Embeddings["talked about space"] = []float32{0, 1, 0}

		manager = newManager(strata.Config{})
		ctx = context.Background()
	})

	Describe("Store and Search", func() {
		It("round-trips an entity memory through the full path", func() {
			scope := memory.EntityScope("alice")

			result, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   scope,
				Payload: memory.Content{Text: "loves tea"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ID).NotTo(BeEmpty())
			Expect(result.Federated).To(BeFalse())

			item, err := manager.Get(ctx, scope, result.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Payload.Text).To(Equal("loves tea"))

			ranked, err := manager.Search(ctx, "tea", []memory.Scope{scope}, nil, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ranked).To(HaveLen(1))
			Expect(ranked[0].Item.ID).To(Equal(result.ID))
		})

		It("isolates entity scopes whose ids differ only in punctuation", func() {
			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   memory.EntityScope("agent.7"),
				Payload: memory.Content{Text: "loves tea"},
			})
			Expect(err).NotTo(HaveOccurred())

			ranked, err := manager.Search(ctx, "tea", []memory.Scope{memory.EntityScope("agent_7")}, nil, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ranked).To(BeEmpty())

			ranked, err = manager.Search(ctx, "tea", []memory.Scope{memory.EntityScope("agent.7")}, nil, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ranked).To(HaveLen(1))
		})

		It("rejects invalid scopes before storing anything", func() {
			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   memory.Scope{Kind: memory.KindEntity},
				Payload: memory.Content{Text: "loves tea"},
			})
			Expect(err).To(HaveOccurred())
		})

		It("requires a payload", func() {
			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope: memory.EntityScope("alice"),
			})
			Expect(err).To(HaveOccurred())
		})

		It("searches an agent's layered view in one call", func() {
			alice := memory.EntityScope("alice")
			rel := memory.RelationScope("alice", "bob")

			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   alice,
				Payload: memory.Content{Text: "loves tea"},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = manager.Store(ctx, strata.StoreRequest{
				Scope:   rel,
				Payload: memory.Content{Text: "talked about space"},
				Consent: goodConsent(),
			})
			Expect(err).NotTo(HaveOccurred())

			scopes := strata.ScopesFor("alice", []string{"bob"}, nil)
			ranked, err := manager.Search(ctx, "tea", scopes, nil, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ranked).To(HaveLen(2))
			Expect(ranked[0].Item.Payload.Text).To(Equal("loves tea"))
		})
	})

	Describe("consent gating", func() {
		It("rejects relation writes without mutual consent", func() {
			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   memory.RelationScope("alice", "bob"),
				Payload: memory.Content{Text: "talked about space"},
			})

			var consentErr *memory.ConsentError
			Expect(err).To(BeAssignableToTypeOf(consentErr))

			items, listErr := manager.List(ctx, memory.RelationScope("alice", "bob"))
			Expect(listErr).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
		})

		It("rejects relation writes at exactly the trust floor", func() {
			mc := goodConsent()
			mc.TrustLevel = consent.MinimumTrust

			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   memory.RelationScope("alice", "bob"),
				Payload: memory.Content{Text: "talked about space"},
				Consent: mc,
			})
			Expect(err).To(HaveOccurred())
		})

		It("admits collective writes at exactly the consensus floor", func() {
			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope:     memory.CollectiveScope("norms"),
				Payload:   memory.Content{Text: "loves tea"},
				Consensus: &consent.ConsensusLevel{Level: consent.DefaultMinimumConsensus},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects collective writes below the consensus floor", func() {
			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope:     memory.CollectiveScope("norms"),
				Payload:   memory.Content{Text: "loves tea"},
				Consensus: &consent.ConsensusLevel{Level: 0.79},
			})

			var consensusErr *memory.ConsensusError
			Expect(err).To(BeAssignableToTypeOf(consensusErr))
		})

		It("enforces mentor approval when configured", func() {
			gated := newManager(strata.Config{RequireMentor: true})

			_, err := gated.Store(ctx, strata.StoreRequest{
				Scope:     memory.CollectiveScope("norms"),
				Payload:   memory.Content{Text: "loves tea"},
				Consensus: &consent.ConsensusLevel{Level: 0.9},
			})
			Expect(err).To(HaveOccurred())

			_, err = gated.Store(ctx, strata.StoreRequest{
				Scope:     memory.CollectiveScope("norms"),
				Payload:   memory.Content{Text: "loves tea"},
				Consensus: &consent.ConsensusLevel{Level: 0.9},
				Mentor:    &consent.MentorValidation{MentorID: "m1", Approved: true},
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("federation dispatch", func() {
		var transport *testutils.MockTransport

		BeforeEach(func() {
			transport = testutils.NewMockTransport()
			manager = newManager(strata.Config{
				FederationTransport: transport,
				DefaultPolicies: map[memory.ScopeKind]memory.FederationPolicy{
					memory.KindEntity: memory.FederationBroadcast,
				},
			})
			manager.RegisterNode(federation.NewNode("n1", "host1:9092"))
		})

		It("queues broadcast writes for delivery", func() {
			result, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   memory.EntityScope("alice"),
				Payload: memory.Content{Text: "loves tea"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Federated).To(BeTrue())

			Expect(manager.Close()).To(Succeed())

			sent := transport.SentTo("n1")
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].ID).To(Equal(result.ID))
		})

		It("keeps disabled writes local", func() {
			result, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   memory.EntityScope("alice"),
				Payload: memory.Content{Text: "loves tea"},
				Policy:  memory.FederationDisabled,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Federated).To(BeFalse())

			Expect(manager.Close()).To(Succeed())
			Expect(transport.SentTo("n1")).To(BeEmpty())
		})

		It("reports writes local when no node serves the policy", func() {
			result, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   memory.EntityScope("alice"),
				Payload: memory.Content{Text: "loves tea"},
				Policy:  memory.FederationAgentSpecific,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Federated).To(BeFalse())
		})

		It("synchronizes peers on demand", func() {
			_, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   memory.EntityScope("alice"),
				Payload: memory.Content{Text: "loves tea"},
				Policy:  memory.FederationDisabled,
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := manager.Synchronize(ctx, []string{"n1"}, federation.SyncFull, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.SyncedCount).To(Equal(1))
		})
	})

	Describe("Fuse", func() {
		It("combines stored items without persisting anything", func() {
			scope := memory.EntityScope("alice")

			first, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   scope,
				Payload: memory.Content{Text: "loves tea", Confidence: 0.9},
			})
			Expect(err).NotTo(HaveOccurred())

			second, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   scope,
				Payload: memory.Content{Text: "talked about space", Confidence: 0.4},
			})
			Expect(err).NotTo(HaveOccurred())

			fused, err := manager.Fuse(ctx, scope, []string{first.ID, second.ID}, memory.FuseWeighted, 0.6)
			Expect(err).NotTo(HaveOccurred())
			Expect(fused.Text).NotTo(BeEmpty())

			items, err := manager.List(ctx, scope)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
		})

		It("applies the gate floor when no consensus floor is given", func() {
			scope := memory.EntityScope("alice")

			first, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   scope,
				Payload: memory.Content{Text: "loves tea", Confidence: 0.9},
			})
			Expect(err).NotTo(HaveOccurred())

			second, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   scope,
				Payload: memory.Content{Text: "talked about space", Confidence: 0.4},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = manager.Fuse(ctx, scope, []string{first.ID, second.ID}, memory.FuseWeighted, 0)
			var consensusErr *memory.ConsensusError
			Expect(err).To(BeAssignableToTypeOf(consensusErr))
		})

		It("honors a caller-supplied floor stricter than the gate's", func() {
			scope := memory.EntityScope("alice")

			first, err := manager.Store(ctx, strata.StoreRequest{
				Scope:   scope,
				Payload: memory.Content{Text: "loves tea", Confidence: 0.9},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = manager.Fuse(ctx, scope, []string{first.ID}, memory.FuseWeighted, 0.95)
			var consensusErr *memory.ConsensusError
			Expect(err).To(BeAssignableToTypeOf(consensusErr))
		})
	})
})
