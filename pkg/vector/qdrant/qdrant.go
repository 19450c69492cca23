// Package qdrant provides a Qdrant-backed vector driver. Each collection
// maps to a Qdrant collection, giving every layer store an isolated index
// namespace behind a shared client connection.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/vector"
)

// Config holds configuration for the Qdrant provider.
type Config struct {
	// Host is the Qdrant gRPC host (e.g. "localhost").
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334 if zero.
	Port int

	// Dimensions is the embedding dimensionality. Required.
	Dimensions uint
}

// Provider opens per-collection drivers over one shared Qdrant client.
type Provider struct {
	client     *qdrant.Client
	dimensions uint
	logger     *zap.Logger
}

// NewProvider connects to Qdrant and returns a provider.
func NewProvider(c Config, logger *zap.Logger) (*Provider, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: c.Host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", vector.ErrConnection, err)
	}

	logger.Info("connected to qdrant",
		zap.String("host", c.Host),
		zap.Int("port", port),
	)

	return &Provider{client: client, dimensions: c.Dimensions, logger: logger}, nil
}

// Open ensures the named collection exists and returns a driver over it.
func (p *Provider) Open(ctx context.Context, collection string) (vector.Driver, error) {
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking collection %q: %v", vector.ErrConnection, collection, err)
	}

	if !exists {
		err := p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(p.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}

		p.logger.Info("created qdrant collection",
			zap.String("collection", collection),
			zap.Uint("dimensions", p.dimensions),
		)
	}

	return &Driver{
		client:     p.client,
		collection: collection,
		dimensions: p.dimensions,
		logger:     p.logger,
	}, nil
}

// Close closes the shared client connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Driver implements vector.Driver over one Qdrant collection.
type Driver struct {
	client     *qdrant.Client
	collection string
	dimensions uint
	logger     *zap.Logger
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if uint(len(doc.Embedding)) != d.dimensions {
			return fmt.Errorf("%w: doc %s has %d dims, want %d",
				vector.ErrDimension, doc.ID, len(doc.Embedding), d.dimensions)
		}

		payload := make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}

	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, filters map[string]string, topK int) ([]vector.Result, error) {
	if topK <= 0 {
		topK = 10
	}

	var filter *qdrant.Filter
	if len(filters) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filters))
		for k, v := range filters {
			conditions = append(conditions, qdrant.NewMatch(k, v))
		}
		filter = &qdrant.Filter{Must: conditions}
	}

	limit := uint64(topK)
	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", d.collection, err)
	}

	results := make([]vector.Result, 0, len(points))
	for _, point := range points {
		results = append(results, vector.Result{
			Document: vector.Document{
				ID:       point.GetId().GetUuid(),
				Metadata: payloadToMeta(point.GetPayload()),
			},
			Score: point.GetScore(),
		})
	}

	return results, nil
}

func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting %d points: %w", len(ids), err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, point := range points {
		doc := vector.Document{
			ID:       point.GetId().GetUuid(),
			Metadata: payloadToMeta(point.GetPayload()),
		}
		if v := point.GetVectors().GetVector(); v != nil {
			doc.Embedding = v.GetData()
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	wait := true
	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("deleting %d points: %w", len(ids), err)
	}

	return nil
}

// Healthy reports whether the Qdrant server answers a health check.
func (d *Driver) Healthy(ctx context.Context) bool {
	_, err := d.client.HealthCheck(ctx)
	return err == nil
}

// Close is a no-op; the provider owns the shared client.
func (d *Driver) Close() error {
	return nil
}

func payloadToMeta(payload map[string]*qdrant.Value) map[string]string {
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		meta[k] = v.GetStringValue()
	}
	return meta
}

var (
	_ vector.Driver   = (*Driver)(nil)
	_ vector.Provider = (*Provider)(nil)
)
