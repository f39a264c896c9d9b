// Command cortex-cli runs a single ingest, query, or episode command
// against a data directory and exits. JSON input is read from -input
// or stdin, mirroring the teacher's single-shot CLI mode.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cortex-engine/internal/config"
	"cortex-engine/internal/episodic"
	"cortex-engine/internal/fusion"
	"cortex-engine/internal/graph"
	"cortex-engine/internal/handler"
	"cortex-engine/internal/types"
	"cortex-engine/internal/vecstore"
	"cortex-engine/internal/vectorindex"
)

var (
	flagDataDir    string
	flagDim        int
	flagInput      string
	flagConfigPath string
)

var rootCmd = &cobra.Command{
	Use:   "cortex-cli",
	Short: "One-shot ingest, query, and episode commands for the cognitive retrieval engine",
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index a single document",
	RunE:  runIndex,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a single query and print the response",
	RunE:  runQuery,
}

var episodeCmd = &cobra.Command{
	Use:   "episode",
	Short: "Append a single episode to the episodic buffer",
	RunE:  runEpisode,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data", "data", "data directory")
	rootCmd.PersistentFlags().IntVar(&flagDim, "dim", 768, "embedding dimension")
	rootCmd.PersistentFlags().StringVar(&flagInput, "input", "", "JSON input payload (reads stdin if empty)")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file (overrides -dim's query defaults when set)")
	rootCmd.AddCommand(indexCmd, queryCmd, episodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readInput() ([]byte, error) {
	if flagInput != "" {
		return []byte(flagInput), nil
	}
	stat, _ := os.Stdin.Stat()
	if stat == nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no -input given and stdin is not piped")
	}
	dec := json.NewDecoder(os.Stdin)
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode stdin: %w", err)
	}
	return json.Marshal(raw)
}

func openStore(logger *slog.Logger) (*vecstore.MmapStore, error) {
	if err := os.MkdirAll(flagDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return vecstore.NewMmapStore(filepath.Join(flagDataDir, "vectors.bin"), flagDim)
}

func loadConfig() (config.Config, error) {
	cfg := config.Default(flagDim)
	if flagConfigPath == "" {
		cfg.DataDir = flagDataDir
		return cfg, nil
	}
	loaded, err := config.Load(flagConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return config.Merge(cfg, loaded), nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	inputBytes, err := readInput()
	if err != nil {
		return err
	}
	var req struct {
		DocID     string          `json:"doc_id"`
		Embedding types.Embedding `json:"embedding"`
		Content   string          `json:"content"`
		Metadata  types.Metadata  `json:"metadata"`
	}
	if err := json.Unmarshal(inputBytes, &req); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	store, err := openStore(nil)
	if err != nil {
		return err
	}
	defer store.Close()

	idx := vectorindex.New(vectorindex.DefaultConfig(flagDim), store, nil)
	inserted, err := idx.Add(req.DocID, req.Embedding, req.Content, req.Metadata)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	fmt.Printf("{\"status\":\"ok\",\"inserted\":%v,\"doc_id\":%q}\n", inserted, req.DocID)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	inputBytes, err := readInput()
	if err != nil {
		return err
	}
	var req struct {
		Query     string          `json:"query"`
		Embedding types.Embedding `json:"embedding"`
	}
	if err := json.Unmarshal(inputBytes, &req); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	idx := vectorindex.New(cfg.Index.ToVectorIndexConfig(), store, logger)

	episodePath := filepath.Join(flagDataDir, "episodes.csv")
	buf := episodic.NewBuffer(cfg.Episodic.Capacity, flagDim, logger)
	if _, err := os.Stat(episodePath); err == nil {
		if err := buf.Load(episodePath); err != nil {
			logger.Warn("failed to load episode file", "error", err)
		}
	}

	h := handler.New(idx, buf, graph.New(), fusion.New(), logger)
	resp := h.ProcessQuery(req.Query, req.Embedding, cfg.Query.ToHandlerQueryConfig())
	return json.NewEncoder(os.Stdout).Encode(resp)
}

func runEpisode(cmd *cobra.Command, args []string) error {
	inputBytes, err := readInput()
	if err != nil {
		return err
	}
	var req struct {
		Query     string            `json:"query"`
		Response  string            `json:"response"`
		Embedding types.Embedding   `json:"embedding"`
		Metadata  map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(inputBytes, &req); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	if err := os.MkdirAll(flagDataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	episodePath := filepath.Join(flagDataDir, "episodes.csv")

	buf := episodic.NewBuffer(500, flagDim, nil)
	if _, err := os.Stat(episodePath); err == nil {
		if err := buf.Load(episodePath); err != nil {
			return fmt.Errorf("load episodes: %w", err)
		}
	}
	buf.Add(req.Query, req.Response, req.Embedding, req.Metadata)
	if err := buf.Save(episodePath); err != nil {
		return fmt.Errorf("save episodes: %w", err)
	}
	fmt.Println("{\"status\":\"ok\"}")
	return nil
}
