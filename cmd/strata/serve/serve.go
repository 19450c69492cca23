// Package servecmder provides the serve command for running the memory API
// server.
package servecmder

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strataworks/strata/api"
	"github.com/strataworks/strata/pkg/config"
	embeddingutils "github.com/strataworks/strata/pkg/embeddings/utils"
	"github.com/strataworks/strata/pkg/federation"
	fedkafka "github.com/strataworks/strata/pkg/federation/kafka"
	fednop "github.com/strataworks/strata/pkg/federation/nop"
	"github.com/strataworks/strata/pkg/logger"
	"github.com/strataworks/strata/pkg/memory"
	storageutils "github.com/strataworks/strata/pkg/storage/utils"
	"github.com/strataworks/strata/pkg/strata"
	vectorutils "github.com/strataworks/strata/pkg/vector/utils"
)

type ServeCommander struct {
	configDir string
	listen    string
	debug     bool
	logger    *zap.Logger
}

const serveLongDesc string = `Run the Strata memory API server.

Configuration is read from config.toml in the config directory, overridable
via STRATA_* environment variables.`

const serveShortDesc string = "Run the Strata memory API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.configDir, "config", "c", "", "Config directory (default: current directory)")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for the API server to listen on (overrides config)")

	return cmd
}

func (c *ServeCommander) run() error {
	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	c.logger = logger.NewLogger(c.debug || cfg.Debug)
	defer c.logger.Sync()

	manager, err := c.buildManager(cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	listen := cfg.API.Listen
	if c.listen != "" {
		listen = c.listen
	}

	apiServer := api.NewServer(api.Config{ListenAddr: listen}, manager, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}

func (c *ServeCommander) buildManager(cfg *config.Config) (*strata.Manager, error) {
	key, err := hex.DecodeString(cfg.Memory.Key)
	if err != nil {
		return nil, fmt.Errorf("memory.key must be hex encoded: %w", err)
	}

	ctx := context.Background()

	store, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		ProviderType: cfg.Storage.Provider,
		SQLitePath:   cfg.Storage.SQLitePath,
		PostgresDSN:  cfg.Storage.PostgresDSN,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage driver: %w", err)
	}

	provider, err := vectorutils.NewProvider(&vectorutils.NewProviderOpts{
		ProviderType: cfg.VectorStore.Provider,
		Target:       cfg.VectorStore.Target,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector provider: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType:    cfg.Embedding.Provider,
		TargetURL:       cfg.Embedding.Target,
		Model:           cfg.Embedding.Model,
		CacheDisabled:   !cfg.Embedding.CacheEnabled,
		CacheTTL:        time.Duration(cfg.Embedding.CacheTTLSeconds) * time.Second,
		CacheMaxEntries: int64(cfg.Embedding.CacheMaxEntries),
		Logger:          c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	transport, err := c.buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	manager, err := strata.NewManager(strata.Config{
		Key:            key,
		Storage:        store,
		VectorProvider: provider,
		Embedder:       embedder,

		MinimumConsensus: cfg.Memory.MinimumConsensus,
		RequireMentor:    cfg.Memory.RequireMentor,
		DefaultPolicies: map[memory.ScopeKind]memory.FederationPolicy{
			memory.KindEntity:     memory.FederationPolicy(cfg.Memory.EntityPolicy),
			memory.KindRelation:   memory.FederationPolicy(cfg.Memory.RelationPolicy),
			memory.KindCollective: memory.FederationPolicy(cfg.Memory.CollectivePolicy),
		},

		FederationTransport: transport,
		FederationWorkers:   cfg.Federation.Workers,
		FederationQueueSize: cfg.Federation.QueueSize,

		Logger: c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory manager: %w", err)
	}

	for _, n := range cfg.Federation.Nodes {
		manager.RegisterNode(federation.NewNode(n.ID, n.Addr, n.Agents...))
	}

	return manager, nil
}

func (c *ServeCommander) buildTransport(cfg *config.Config) (federation.Transport, error) {
	switch cfg.Federation.Transport {
	case "", "disabled":
		return nil, nil
	case "nop":
		return fednop.NewTransport(), nil
	case "kafka":
		return fedkafka.NewTransport(fedkafka.Config{
			SourceNode: cfg.Federation.SourceNode,
			Logger:     c.logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported federation transport: %s", cfg.Federation.Transport)
	}
}
