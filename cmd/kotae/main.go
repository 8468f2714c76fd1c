// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/assistant"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/memory"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/source"
	"github.com/hyperjump/kotae/internal/synthesis"
	"github.com/hyperjump/kotae/internal/vectorindex"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Credentials come from the environment; a .env file is a convenience
	// for development and absent in production.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Papers.Watch {
		ing := components.Ingestor
		src := components.Source
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.New(cfg.Papers.Directory, cfg.Papers.Extensions,
			func(path string) {
				doc, err := src.LoadFile(path)
				if err != nil {
					logger.Warn("watch load file failed", zap.String("path", path), zap.Error(err))
					return
				}
				report, err := ing.IngestDocuments(context.Background(), []models.DocumentInput{doc})
				if err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
					return
				}
				if report.FailedBatches == 0 {
					if err := src.MarkIndexed(context.Background()); err != nil {
						logger.Warn("failed to record file states", zap.Error(err))
					}
				}
				logger.Info("watch ingested file",
					zap.String("path", path),
					zap.Int("written", report.Written),
					zap.Int("existing", report.Existing))
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Assistant,
		components.Engine,
		components.Ingestor,
		components.Source,
		components.Index,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the pipeline in-process)")
	conversationID := fs.String("conversation", "", "conversation ID for follow-up questions")
	topK := fs.Int("top-k", 0, "number of retrieval results (0 = configured default)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	question := buildQuestion(fs.Args())
	if question == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}

	req := models.AskRequest{
		ConversationID: *conversationID,
		Question:       question,
		TopK:           *topK,
	}

	var resp *models.AskResponse
	if *serverURL != "" {
		var err error
		resp, err = askViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		resp, err = components.Assistant.Ask(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	}

	if resp.Answer != "" {
		fmt.Println(resp.Answer)
	} else {
		fmt.Println("(no synthesizer configured; showing retrieval results)")
		printResults(resp.Results)
	}
	if len(resp.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range resp.Citations {
			if c.PageRange != "" {
				fmt.Printf("  %s - %s (pages: %s)\n", c.Source.Ref, c.Title, c.PageRange)
			} else {
				fmt.Printf("  %s - %s (page %d)\n", c.Source.Ref, c.Title, c.Page)
			}
		}
	}
	fmt.Printf("\nconversation: %s\n", resp.ConversationID)
}

func askViaHTTP(serverURL string, req models.AskRequest) (*models.AskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = search in-process)")
	topK := fs.Int("top-k", 0, "number of results (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae search [flags] <query>")
		os.Exit(1)
	}
	query := buildQuestion(fs.Args())

	var results []models.SearchResult
	if *serverURL != "" {
		var err error
		results, err = searchViaHTTP(*serverURL, query, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		results, err = components.Engine.Search(context.Background(), query, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		printResults(results)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, topK int) ([]models.SearchResult, error) {
	body, err := json.Marshal(map[string]any{"query": query, "top_k": topK})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Results []models.SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Results, nil
}

func printResults(results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%s] %s - %s (page %d, score %.3f)\n", i+1, r.Source.Kind, r.Source.Ref, r.Title, r.Page, r.Score)
		fmt.Printf("   %s\n", strings.ReplaceAll(utils.Truncate(r.Text, 200), "\n", " "))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	src := components.Source
	if fs.NArg() > 0 {
		src = source.NewFSSource(fs.Arg(0), cfg.Papers.Extensions, source.WithLogger(logger))
	}
	ctx := context.Background()
	docs, err := src.Load(ctx)
	if err != nil {
		fmt.Printf("Loading documents failed: %v\n", err)
		os.Exit(1)
	}
	report, err := components.Ingestor.IngestDocuments(ctx, docs)
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if report.FailedBatches == 0 {
		if err := src.MarkIndexed(ctx); err != nil {
			logger.Warn("failed to record file states", zap.Error(err))
		}
	}
	fmt.Printf("documents:      %d\n", len(docs))
	fmt.Printf("candidates:     %d\n", report.Candidates)
	fmt.Printf("skipped_empty:  %d\n", report.SkippedEmpty)
	fmt.Printf("existing:       %d\n", report.Existing)
	fmt.Printf("written:        %d\n", report.Written)
	if report.FailedBatches > 0 {
		fmt.Printf("failed_batches: %d   # re-run to retry\n", report.FailedBatches)
	}
}

// runDelete drops the vector collection, or clears a single conversation's
// memory when --conversation is given. The collection is rebuilt from the
// document directory on the next ingest.
func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	conversation := fs.String("conversation", "", "clear this conversation's memory instead of the collection")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if *conversation != "" {
		if err := components.Memory.Clear(ctx, *conversation); err != nil {
			fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("cleared conversation %s\n", *conversation)
		return
	}
	if err := components.Index.DeleteCollection(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	// Recorded file states refer to the dropped collection; without this the
	// next ingest would skip every file and the collection would stay empty.
	if fileStore, ok := components.Memory.(*memory.SQLiteStore); ok {
		if err := fileStore.ClearFiles(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to reset file states: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("deleted collection %s\n", components.Index.Collection())
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = query the index directly)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		_, _ = io.Copy(os.Stdout, resp.Body)
		fmt.Println()
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	count, err := components.Index.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("collection: %s\n", components.Index.Collection())
	fmt.Printf("points:     %d\n", count)
}

// Components holds initialized services.
type Components struct {
	Memory    memory.Store
	Embedder  embedding.Embedder
	Index     *vectorindex.Client
	Source    *source.FSSource
	Ingestor  *ingest.Ingestor
	Engine    *search.Engine
	Assistant *assistant.Assistant
}

func (c *Components) Close() {
	if c.Memory != nil {
		_ = c.Memory.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := memory.NewSQLiteStore(cfg.Memory.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory store: %w", err)
	}

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	indexOpts := []vectorindex.ClientOption{}
	if debug {
		indexOpts = append(indexOpts, vectorindex.WithLogger(logger))
	}
	index, err := vectorindex.NewClient(vectorindex.Config{
		URL:           cfg.Index.URL,
		APIKey:        os.Getenv(cfg.Index.APIKeyEnv),
		Collection:    cfg.Index.Collection,
		Dimension:     embedder.Dimensions(),
		Timeout:       time.Duration(cfg.Index.TimeoutSeconds) * time.Second,
		ReadyInterval: time.Duration(cfg.Index.ReadyIntervalSeconds) * time.Second,
		ReadyAttempts: cfg.Index.ReadyAttempts,
	}, indexOpts...)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector index client: %w", err)
	}

	src := source.NewFSSource(cfg.Papers.Directory, cfg.Papers.Extensions,
		source.WithLogger(logger),
		source.WithTracker(store),
	)
	ingestor := ingest.NewIngestor(index, embedder, &cfg.Ingest, ingest.WithLogger(logger))
	engine := search.NewEngine(index, embedder, &cfg.Search, search.WithLogger(logger))
	synthesizer := newSynthesizer(cfg, logger)
	asst := assistant.New(src, ingestor, engine, store, synthesizer, cfg, assistant.WithLogger(logger))

	return &Components{
		Memory:    store,
		Embedder:  embedder,
		Index:     index,
		Source:    src,
		Ingestor:  ingestor,
		Engine:    engine,
		Assistant: asst,
	}, nil
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		var err error
		embedder, err = embedding.NewOpenAIEmbedder(
			os.Getenv(cfg.Embedding.APIKeyEnv),
			cfg.Embedding.BaseURL,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.BatchSize,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	case "onnx":
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
		)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, falling back to mock", zap.Error(err))
			embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			embedder = onnxEmbedder
		}
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embedding.WithCache(embedder, cfg.Embedding.CacheSize), nil
}

func newSynthesizer(cfg *config.Config, logger *zap.Logger) synthesis.Synthesizer {
	var (
		s   *synthesis.ChatSynthesizer
		err error
	)
	switch cfg.Synthesis.Provider {
	case "azure":
		s, err = synthesis.NewAzureSynthesizer(&cfg.Synthesis, synthesis.WithLogger(logger))
	case "openai":
		s, err = synthesis.NewOpenAISynthesizer(&cfg.Synthesis, synthesis.WithLogger(logger))
	default:
		logger.Info("synthesis disabled, /ask returns evidence only",
			zap.String("provider", cfg.Synthesis.Provider))
		return synthesis.Disabled{}
	}
	if err != nil {
		logger.Warn("synthesizer unavailable, answers disabled", zap.Error(err))
		return synthesis.Disabled{}
	}
	return s
}

func printUsage() {
	fmt.Println(`kotae - Retrieval-augmented question answering over your documents

Usage:
  kotae server [flags]            Start the HTTP server
  kotae ask [flags] <question>    Ask a question (indexes new documents first)
  kotae search [flags] <query>    Semantic search over the index
  kotae ingest [flags] [dir]      Index the configured (or given) document directory
  kotae delete [flags]            Drop the vector collection (or clear one conversation)
  kotae status [flags]            Show collection status
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string        Config file path (for in-process mode)
  --server string        Server URL (default: http://localhost:8080). Use --server "" to run in-process.
  --conversation string  Conversation ID for follow-up questions
  --top-k int            Number of retrieval results

Search Flags:
  --config string    Config file path (for in-process mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to run in-process.
  --top-k int        Number of results
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae ask "what does the attention paper conclude?"
  kotae ask --conversation 4f7c... "and what are its limitations?"
  kotae search --output json "gradient descent"
  kotae ingest ~/papers
  kotae delete --conversation 4f7c...
  kotae status`)
}
