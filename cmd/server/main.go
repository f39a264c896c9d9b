// Command cortex-server runs the cognitive retrieval engine as an
// HTTP service: it wires the vector index, episodic buffer, concept
// graph, fusion, and validator into a Handler and serves it behind
// api.Server, persisting the episode buffer and stopping cleanly on
// SIGINT/SIGTERM.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"cortex-engine/internal/api"
	"cortex-engine/internal/audit"
	"cortex-engine/internal/config"
	"cortex-engine/internal/episodic"
	"cortex-engine/internal/fusion"
	"cortex-engine/internal/graph"
	"cortex-engine/internal/handler"
	"cortex-engine/internal/vecstore"
	"cortex-engine/internal/vectorindex"
)

var (
	flagConfigPath string
	flagDataDir    string
	flagAddress    string
	flagDim        int
)

var rootCmd = &cobra.Command{
	Use:   "cortex-server",
	Short: "Run the cognitive retrieval engine as an HTTP service",
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file (overrides other flags when set)")
	rootCmd.Flags().StringVar(&flagDataDir, "data", "data", "data directory for the index, episode, and audit files")
	rootCmd.Flags().StringVar(&flagAddress, "address", ":8080", "listen address")
	rootCmd.Flags().IntVar(&flagDim, "dim", 768, "embedding dimension")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.Default(flagDim)
	if flagConfigPath != "" {
		loaded, err := config.Load(flagConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = config.Merge(cfg, loaded)
	} else {
		cfg.DataDir = flagDataDir
		cfg.Address = flagAddress
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logger, closeLog, err := config.SetupLogger(cfg.DataDir, config.ParseLogLevel(cfg.LogLevel), cfg.Index.Dim)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer closeLog()

	vecPath := filepath.Join(cfg.DataDir, "vectors.bin")
	auditPath := filepath.Join(cfg.DataDir, "audit.db")
	episodePath := filepath.Join(cfg.DataDir, "episodes.csv")

	store, err := vecstore.NewMmapStore(vecPath, cfg.Index.Dim)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer store.Close()

	idx := vectorindex.New(cfg.Index.ToVectorIndexConfig(), store, logger)

	episodeCapacity := cfg.Episodic.Capacity
	if episodeCapacity <= 0 {
		episodeCapacity = 500
	}
	buf := episodic.NewBuffer(episodeCapacity, cfg.Index.Dim, logger)
	if _, err := os.Stat(episodePath); err == nil {
		if err := buf.Load(episodePath); err != nil {
			logger.Warn("failed to load episode file, starting empty", "error", err)
		}
	}

	g := graph.New()
	f := fusion.New()
	h := handler.New(idx, buf, g, f, logger)

	auditLog, err := audit.Open(auditPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	srv, err := api.NewServer(h, auditLog, cfg.Query.ToHandlerQueryConfig())
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(cfg.Address) }()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		logger.Info("shutdown signal received, persisting episode buffer")
		if err := buf.Save(episodePath); err != nil {
			logger.Error("failed to save episode buffer on shutdown", "error", err)
		}
	}
	return nil
}
