// Package inmemory provides an in-process vector driver using brute-force
// cosine similarity. Intended for tests and local development.
package inmemory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/strataworks/strata/pkg/vector"
)

// Provider opens isolated in-memory drivers, one per collection.
type Provider struct {
	mu          sync.Mutex
	collections map[string]*Driver
}

// NewProvider creates an empty in-memory provider.
func NewProvider() *Provider {
	return &Provider{collections: make(map[string]*Driver)}
}

// Open returns the driver for the collection, creating it on first use.
func (p *Provider) Open(_ context.Context, collection string) (vector.Driver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.collections[collection]; ok {
		return d, nil
	}

	d := &Driver{docs: make(map[string]vector.Document)}
	p.collections[collection] = d
	return d, nil
}

// Close is a no-op for the in-memory provider.
func (p *Provider) Close() error {
	return nil
}

// Driver implements vector.Driver with a brute-force cosine scan.
type Driver struct {
	mu   sync.RWMutex
	docs map[string]vector.Document
}

func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		copied := doc
		copied.Embedding = append([]float32(nil), doc.Embedding...)
		copied.Metadata = copyMeta(doc.Metadata)
		d.docs[doc.ID] = copied
	}

	return nil
}

func (d *Driver) Query(_ context.Context, embedding []float32, filters map[string]string, topK int) ([]vector.Result, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	results := make([]vector.Result, 0, len(d.docs))
	for _, doc := range d.docs {
		if !matches(doc.Metadata, filters) {
			continue
		}
		results = append(results, vector.Result{
			Document: doc,
			Score:    cosine(embedding, doc.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := d.docs[id]; ok {
			out = append(out, doc)
		}
	}

	return out, nil
}

func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}

	return nil
}

func (d *Driver) Healthy(_ context.Context) bool {
	return true
}

func (d *Driver) Close() error {
	return nil
}

func matches(meta, filters map[string]string) bool {
	for k, v := range filters {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	_ vector.Driver   = (*Driver)(nil)
	_ vector.Provider = (*Provider)(nil)
)
