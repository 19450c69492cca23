package federation_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/federation"
	"github.com/strataworks/strata/pkg/federation/nop"
	storageinmemory "github.com/strataworks/strata/pkg/storage/inmemory"
	testutils "github.com/strataworks/strata/pkg/utils/test"

	"github.com/strataworks/strata/pkg/memory"
)

// blockingTransport parks every Send until release is closed so a test can
// hold a worker busy on purpose.
type blockingTransport struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (t *blockingTransport) Send(_ context.Context, _ *federation.Node, _ *memory.EncryptedItem) error {
	t.started <- struct{}{}
	<-t.release
	return nil
}

func (t *blockingTransport) Ping(context.Context, *federation.Node) error { return nil }

func (t *blockingTransport) Close() error { return nil }

var _ = Describe("Pool", func() {
	var (
		transport *testutils.MockTransport
		manager   *federation.Manager
		pool      *federation.Pool
	)

	BeforeEach(func() {
		transport = testutils.NewMockTransport()
		logger, _ := zap.NewDevelopment()

		var err error
		manager, err = federation.NewManager(transport, storageinmemory.NewDriver(), logger)
		Expect(err).NotTo(HaveOccurred())

		manager.RegisterNode(federation.NewNode("n1", "host1:9092"))

		pool, err = federation.NewPool(&federation.PoolConfig{
			Manager: manager,
			Logger:  logger,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a manager", func() {
		_, err := federation.NewPool(&federation.PoolConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("delivers enqueued jobs before Close returns", func() {
		item := encItem("item-1", "ent_alice", time.Now().UTC())

		ok := pool.Enqueue(federation.Job{Item: item, TargetIDs: []string{"n1"}})
		Expect(ok).To(BeTrue())

		pool.Close()

		sent := transport.SentTo("n1")
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].ID).To(Equal("item-1"))
	})

	It("keeps the local commit when delivery fails", func() {
		transport.FailNodes["n1"] = true
		item := encItem("item-2", "ent_alice", time.Now().UTC())

		ok := pool.Enqueue(federation.Job{Item: item, TargetIDs: []string{"n1"}})
		Expect(ok).To(BeTrue())

		// Draining must not panic or block even though every send fails.
		pool.Close()
		Expect(transport.SentTo("n1")).To(BeEmpty())
	})

	It("drops jobs when the queue is full", func() {
		logger, _ := zap.NewDevelopment()

		slow := newBlockingTransport()
		blocked, err := federation.NewManager(slow, storageinmemory.NewDriver(), logger)
		Expect(err).NotTo(HaveOccurred())
		blocked.RegisterNode(federation.NewNode("n1", "host1:9092"))

		small, err := federation.NewPool(&federation.PoolConfig{
			Manager:    blocked,
			NumWorkers: 1,
			QueueSize:  1,
			Logger:     logger,
		})
		Expect(err).NotTo(HaveOccurred())

		job := func(id string) federation.Job {
			return federation.Job{
				Item:      encItem(id, "ent_alice", time.Now().UTC()),
				TargetIDs: []string{"n1"},
			}
		}

		// First job is held by the worker inside Send, second fills the
		// single queue slot, third has nowhere to go.
		Expect(small.Enqueue(job("item-3"))).To(BeTrue())
		Eventually(slow.started).Should(Receive())

		Expect(small.Enqueue(job("item-4"))).To(BeTrue())
		Expect(small.Enqueue(job("item-5"))).To(BeFalse())

		close(slow.release)
		small.Close()
	})
})

var _ = Describe("ItemFederatedEvent", func() {
	It("wraps an item in a v1 envelope", func() {
		node := federation.NewNode("n1", "host1:9092")
		item := encItem("item-1", "ent_alice", time.Now().UTC())

		event := federation.NewItemFederatedEvent("self", node, item)

		Expect(event.SchemaVersion).To(Equal(federation.SchemaVersionV1))
		Expect(event.EventType).To(Equal(federation.EventTypeItemFederated))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.SourceNode).To(Equal("self"))
		Expect(event.TargetNode).To(Equal("n1"))
		Expect(event.Item).To(BeIdenticalTo(item))
	})
})

var _ = Describe("Nop transport", func() {
	It("accepts sends and pings without side effects", func() {
		ctx := context.Background()
		transport := nop.NewTransport()
		node := federation.NewNode("n1", "host1:9092")

		Expect(transport.Send(ctx, node, encItem("item-1", "ent_alice", time.Now().UTC()))).To(Succeed())
		Expect(transport.Ping(ctx, node)).To(Succeed())
		Expect(transport.Close()).To(Succeed())
	})

	It("rejects nil items", func() {
		transport := nop.NewTransport()
		err := transport.Send(context.Background(), federation.NewNode("n1", "host1:9092"), nil)
		Expect(err).To(MatchError(nop.ErrNilItem))
	})
})
