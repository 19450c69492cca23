// Package kafka implements the federation transport over Kafka topics.
// Each peer node is addressed by its own topic; the node's Addr field
// carries the broker address.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/federation"
	"github.com/strataworks/strata/pkg/memory"
)

const (
	// TopicPrefix namespaces federation topics on shared brokers.
	TopicPrefix = "strata.federation."

	defaultBatchTimeout = 50 * time.Millisecond
	defaultDialTimeout  = 5 * time.Second
)

// Config is the configuration options for the Kafka transport.
type Config struct {
	// SourceNode names this node in outgoing event envelopes.
	SourceNode string

	// BatchTimeout bounds how long a writer buffers before flushing.
	BatchTimeout time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Transport delivers item events to per-node Kafka topics. Writers are
// created lazily per node and reused.
type Transport struct {
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	writers map[string]*kafkago.Writer
}

var _ federation.Transport = (*Transport)(nil)

// NewTransport creates a Kafka federation transport.
func NewTransport(config Config) *Transport {
	if config.BatchTimeout == 0 {
		config.BatchTimeout = defaultBatchTimeout
	}

	return &Transport{
		config:  config,
		logger:  config.Logger,
		writers: make(map[string]*kafkago.Writer),
	}
}

// Topic returns the federation topic for a node id.
func Topic(nodeID string) string {
	return TopicPrefix + nodeID
}

// Send wraps the item in a v1 envelope and produces it to the node's
// topic, keyed by item id so replicas of the same item stay ordered.
func (t *Transport) Send(ctx context.Context, node *federation.Node, item *memory.EncryptedItem) error {
	event := federation.NewItemFederatedEvent(t.config.SourceNode, node, item)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling federation event: %w", err)
	}

	writer := t.writer(node)

	if err := writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(item.ID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("producing to %s: %w", writer.Topic, err)
	}

	t.logger.Debug("federation event produced",
		zap.String("node_id", node.ID),
		zap.String("topic", writer.Topic),
		zap.String("item_id", item.ID),
	)

	return nil
}

// Ping dials the node's broker to check reachability.
func (t *Transport) Ping(ctx context.Context, node *federation.Node) error {
	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	conn, err := kafkago.DialContext(dialCtx, "tcp", node.Addr)
	if err != nil {
		return fmt.Errorf("dialing broker %s: %w", node.Addr, err)
	}

	return conn.Close()
}

// Close closes every writer. Safe to call once during shutdown.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for id, w := range t.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing writer for node %s: %w", id, err)
		}
	}
	t.writers = make(map[string]*kafkago.Writer)

	return firstErr
}

func (t *Transport) writer(node *federation.Node) *kafkago.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if w, ok := t.writers[node.ID]; ok {
		return w
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(node.Addr),
		Topic:        Topic(node.ID),
		Balancer:     &kafkago.Hash{},
		BatchTimeout: t.config.BatchTimeout,
		RequiredAcks: kafkago.RequireOne,
	}
	t.writers[node.ID] = w

	return w
}
