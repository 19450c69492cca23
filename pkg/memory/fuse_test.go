package memory

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testItem(text string, confidence float64, scope Scope, priority Priority, createdAt time.Time) *Item {
	item := NewItem(Content{Text: text, Confidence: confidence}, []float32{0.1}, scope, priority, FederationDisabled)
	item.CreatedAt = createdAt
	return item
}

var _ = Describe("Fuse", func() {
	var (
		now   time.Time
		scope Scope
	)

	BeforeEach(func() {
		now = time.Now().UTC()
		scope = EntityScope("alice")
	})

	It("rejects an empty item list", func() {
		_, err := Fuse(nil, FuseWeighted, 0.5)
		Expect(err).To(MatchError(ErrNoMemoriesToFuse))
	})

	It("rejects fusion below the required consensus", func() {
		items := []*Item{
			testItem("a", 0.3, scope, PriorityNormal, now),
			testItem("b", 0.3, scope, PriorityNormal, now),
		}

		_, err := Fuse(items, FuseWeighted, 0.8)

		var consensusErr *ConsensusError
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &consensusErr)).To(BeTrue())
		Expect(consensusErr.Required).To(Equal(0.8))
	})

	It("passes when aggregate confidence equals the floor exactly", func() {
		items := []*Item{
			testItem("a", 0.8, scope, PriorityNormal, now),
			testItem("b", 0.8, scope, PriorityNormal, now),
		}

		fused, err := Fuse(items, FuseTemporal, 0.8)
		Expect(err).NotTo(HaveOccurred())
		Expect(fused.Confidence).To(BeNumerically("~", 0.8, 1e-9))
	})

	Describe("weighted strategy", func() {
		It("puts high-confidence recent fragments first", func() {
			older := testItem("old weak", 0.5, scope, PriorityNormal, now.Add(-time.Hour))
			newer := testItem("new strong", 1.0, scope, PriorityNormal, now)

			fused, err := Fuse([]*Item{older, newer}, FuseWeighted, 0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(fused.Text).To(Equal("new strong\nold weak"))
			Expect(fused.Type).To(Equal("fused"))
			Expect(fused.Meta["fusion_strategy"]).To(Equal("weighted"))
			Expect(fused.Meta["source_count"]).To(Equal("2"))
		})
	})

	Describe("consensus strategy", func() {
		It("keeps only the majority text", func() {
			items := []*Item{
				testItem("agreed", 1.0, scope, PriorityNormal, now),
				testItem("agreed", 1.0, scope, PriorityNormal, now),
				testItem("outlier", 1.0, scope, PriorityNormal, now),
			}

			fused, err := Fuse(items, FuseConsensus, 0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(fused.Text).To(Equal("agreed"))
		})

		It("fails when no text reaches a strict majority", func() {
			items := []*Item{
				testItem("one", 1.0, scope, PriorityNormal, now),
				testItem("two", 1.0, scope, PriorityNormal, now),
			}

			_, err := Fuse(items, FuseConsensus, 0.5)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("hierarchical strategy", func() {
		It("prefers wider scopes, then priority", func() {
			entity := testItem("entity", 1.0, EntityScope("alice"), PriorityCritical, now)
			relation := testItem("relation", 1.0, RelationScope("alice", "bob"), PriorityNormal, now)
			collective := testItem("collective", 1.0, CollectiveScope("guild"), PriorityNormal, now)

			fused, err := Fuse([]*Item{entity, relation, collective}, FuseHierarchical, 0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(fused.Text).To(Equal("collective\nrelation\nentity"))
		})
	})

	Describe("temporal strategy", func() {
		It("orders fragments oldest to newest", func() {
			first := testItem("first", 1.0, scope, PriorityNormal, now.Add(-2*time.Hour))
			second := testItem("second", 1.0, scope, PriorityNormal, now.Add(-time.Hour))
			third := testItem("third", 1.0, scope, PriorityNormal, now)

			fused, err := Fuse([]*Item{third, first, second}, FuseTemporal, 0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(fused.Text).To(Equal("first\nsecond\nthird"))
		})
	})

	It("rejects an unknown strategy", func() {
		items := []*Item{testItem("a", 1.0, scope, PriorityNormal, now)}
		_, err := Fuse(items, FuseStrategy("bogus"), 0.5)
		Expect(err).To(HaveOccurred())
	})
})
