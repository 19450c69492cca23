package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/strataworks/strata/pkg/consent"
	stratalogger "github.com/strataworks/strata/pkg/logger"
	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/memory/crypto"
	storageinmemory "github.com/strataworks/strata/pkg/storage/inmemory"
	"github.com/strataworks/strata/pkg/strata"
	testutils "github.com/strataworks/strata/pkg/utils/test"
	vectorinmemory "github.com/strataworks/strata/pkg/vector/inmemory"
)

var _ = Describe("Server", func() {
	var (
		server   *Server
		manager  *strata.Manager
		embedder *testutils.MockEmbedder
	)

	post := func(path string, body any) *http.Response {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())

		req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	get := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, out any) {
		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(raw, out)).To(Succeed())
	}

	entityScope := ScopeRequest{Kind: "entity", AgentID: "alice"}

	storeOne := func(text string) string {
		resp := post("/v1/store", StoreRequest{Scope: entityScope, Text: text})
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

		var result memory.StoreResult
		decode(resp, &result)
		Expect(result.ID).NotTo(BeEmpty())
		return result.ID
	}

	BeforeEach(func() {
		logger := stratalogger.Nop()
		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["loves tea"] = []float32{1, 0, 0}
		embedder.Embeddings["tea"] = []float32{1, 0, 0}

		var err error
		manager, err = strata.NewManager(strata.Config{
			Key:            bytes.Repeat([]byte{0x42}, crypto.KeySize),
			Storage:        storageinmemory.NewDriver(),
			VectorProvider: vectorinmemory.NewProvider(),
			Embedder:       embedder,
			Logger:         logger,
		})
		Expect(err).NotTo(HaveOccurred())

		server = NewServer(Config{ListenAddr: ":0"}, manager, logger)
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp := get("/ping")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body string
			decode(resp, &body)
			Expect(body).To(Equal("pong"))
		})
	})

	Describe("GET /v1/health", func() {
		It("returns the weighted health report", func() {
			resp := get("/v1/health")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var report strata.HealthReport
			decode(resp, &report)
			Expect(report.Score).To(BeNumerically("==", 1.0))
		})
	})

	Describe("POST /v1/store", func() {
		It("creates an entity memory", func() {
			storeOne("loves tea")
		})

		It("rejects a missing text", func() {
			resp := post("/v1/store", StoreRequest{Scope: entityScope})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects malformed bodies", func() {
			req, err := http.NewRequest(http.MethodPost, "/v1/store", bytes.NewReader([]byte("{not json")))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("maps consent rejections to 403 with the thresholds", func() {
			resp := post("/v1/store", StoreRequest{
				Scope: ScopeRequest{Kind: "relation", AgentA: "alice", AgentB: "bob"},
				Text:  "talked about space",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusForbidden))

			var body ErrorResponse
			decode(resp, &body)
			Expect(body.RequiredTrust).NotTo(BeNil())
			Expect(*body.RequiredTrust).To(Equal(consent.MinimumTrust))
		})

		It("maps consensus rejections to 403 with the thresholds", func() {
			resp := post("/v1/store", StoreRequest{
				Scope:     ScopeRequest{Kind: "collective", Tier: "norms"},
				Text:      "shared norm",
				Consensus: &consent.ConsensusLevel{Level: 0.5},
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusForbidden))

			var body ErrorResponse
			decode(resp, &body)
			Expect(body.RequiredConsensus).NotTo(BeNil())
			Expect(*body.ActualConsensus).To(Equal(0.5))
		})

		It("admits relation writes with valid consent", func() {
			resp := post("/v1/store", StoreRequest{
				Scope: ScopeRequest{Kind: "relation", AgentA: "alice", AgentB: "bob"},
				Text:  "talked about space",
				Consent: &consent.MutualConsent{
					AgentA: "alice", AgentB: "bob",
					ConsentA: true, ConsentB: true,
					TrustLevel: 0.9,
				},
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))
		})
	})

	Describe("POST /v1/search", func() {
		It("returns the merged ranking", func() {
			storeOne("loves tea")

			resp := post("/v1/search", SearchRequest{
				Query:  "tea",
				Scopes: []ScopeRequest{entityScope},
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body struct {
				Count int `json:"count"`
			}
			decode(resp, &body)
			Expect(body.Count).To(Equal(1))
		})

		It("rejects a missing query", func() {
			resp := post("/v1/search", SearchRequest{Scopes: []ScopeRequest{entityScope}})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects an empty scope list", func() {
			resp := post("/v1/search", SearchRequest{Query: "tea"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /v1/fuse", func() {
		It("returns the fused content", func() {
			first := storeOne("loves tea")
			second := storeOne("drinks tea daily")

			resp := post("/v1/fuse", FuseRequest{
				Scope:    entityScope,
				IDs:      []string{first, second},
				Strategy: string(memory.FuseWeighted),
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var fused memory.Content
			decode(resp, &fused)
			Expect(fused.Text).NotTo(BeEmpty())
		})

		It("honors a caller-supplied consensus floor", func() {
			resp := post("/v1/store", StoreRequest{Scope: entityScope, Text: "loves tea", Confidence: 0.6})
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			var stored memory.StoreResult
			decode(resp, &stored)

			resp = post("/v1/fuse", FuseRequest{
				Scope:    entityScope,
				IDs:      []string{stored.ID},
				Strategy: string(memory.FuseWeighted),
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusForbidden))

			resp = post("/v1/fuse", FuseRequest{
				Scope:             entityScope,
				IDs:               []string{stored.ID},
				Strategy:          string(memory.FuseWeighted),
				RequiredConsensus: 0.5,
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		It("rejects an empty id list", func() {
			resp := post("/v1/fuse", FuseRequest{
				Scope:    entityScope,
				Strategy: string(memory.FuseWeighted),
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("maps unknown ids to 404", func() {
			resp := post("/v1/fuse", FuseRequest{
				Scope:    entityScope,
				IDs:      []string{"missing"},
				Strategy: string(memory.FuseWeighted),
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("POST /v1/consolidate", func() {
		It("archives the named items", func() {
			id := storeOne("loves tea")

			resp := post("/v1/consolidate", ConsolidateRequest{
				Scope:    entityScope,
				IDs:      []string{id},
				Strategy: string(strata.StrategyArchive),
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result strata.ConsolidateResult
			decode(resp, &result)
			Expect(result.Archived).To(Equal([]string{id}))
		})

		It("promotes through the write gate", func() {
			id := storeOne("loves tea")

			resp := post("/v1/consolidate", ConsolidateRequest{
				Scope:     entityScope,
				IDs:       []string{id},
				Strategy:  string(strata.StrategyPromote),
				PromoteTo: &ScopeRequest{Kind: "collective", Tier: "norms"},
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusForbidden))
		})
	})

	Describe("POST /v1/sync", func() {
		It("fails when federation is not configured", func() {
			resp := post("/v1/sync", SyncRequest{NodeIDs: []string{"n1"}, Policy: "full"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
		})
	})

	Describe("GET /v1/patterns/:agent", func() {
		It("aggregates an agent's entity scope", func() {
			resp := post("/v1/store", StoreRequest{Scope: entityScope, Text: "loves tea", Type: "preference"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			resp = get("/v1/patterns/alice")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body struct {
				Agent    string                   `json:"agent"`
				Patterns []memory.BehaviorPattern `json:"patterns"`
			}
			decode(resp, &body)
			Expect(body.Agent).To(Equal("alice"))
			Expect(body.Patterns).To(HaveLen(1))
			Expect(body.Patterns[0].ContentType).To(Equal("preference"))
		})
	})
})
