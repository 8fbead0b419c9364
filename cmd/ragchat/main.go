// Ragchat answers questions about course materials.
//
// It serves an HTTP API backed by a retrieval-augmented answer loop: the
// model is given search tools over ingested course documents and a bounded
// number of rounds to use them. Configuration is loaded from a single YAML
// file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	ragchat serve              Start the API server
//	ragchat ask <question>     Ask a single question (for testing)
//	ragchat ingest <path>      Import course documents (file or directory)
//	ragchat version            Print version and build information
//	ragchat -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ylzuimeng/rag-chatbot/internal/agent"
	"github.com/ylzuimeng/rag-chatbot/internal/api"
	"github.com/ylzuimeng/rag-chatbot/internal/buildinfo"
	"github.com/ylzuimeng/rag-chatbot/internal/config"
	"github.com/ylzuimeng/rag-chatbot/internal/embeddings"
	"github.com/ylzuimeng/rag-chatbot/internal/ingest"
	"github.com/ylzuimeng/rag-chatbot/internal/llm"
	"github.com/ylzuimeng/rag-chatbot/internal/prompts"
	"github.com/ylzuimeng/rag-chatbot/internal/session"
	"github.com/ylzuimeng/rag-chatbot/internal/tools"
	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the ragchat command. All OS-level
// dependencies are injected as parameters so the lifecycle can be driven
// from tests. Arguments are parsed by hand: the flag package relies on
// package-level globals, and our argument surface is small enough that
// manual parsing is clearer than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var force bool
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-force" || args[i] == "--force":
			force = true
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: ragchat ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "ingest":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: ragchat ingest <file-or-directory>")
		}
		return runIngest(ctx, stdout, configPath, cmdArgs[0], force)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Ragchat - Course Materials Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: ragchat [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the API server")
	fmt.Fprintln(w, "  ask            Ask a single question (for testing)")
	fmt.Fprintln(w, "  ingest <path>  Import course documents (file or directory)")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w, "  -force            Re-ingest courses that already exist")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/ragchat/config.yaml, /etc/ragchat/config.yaml")
	return nil
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// components is everything a subcommand needs, built once from config.
type components struct {
	store        *vectorstore.Store
	sessions     *session.Store
	orchestrator *agent.Orchestrator
	registry     *tools.Registry
	chunker      *ingest.Chunker
	logger       *slog.Logger
}

// buildComponents opens the stores and wires the answer loop.
func buildComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	if cfg.Anthropic.APIKey == "" {
		return nil, fmt.Errorf("anthropic api_key is not configured")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	embClient := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Logger:  logger,
	})

	store, err := vectorstore.New(filepath.Join(cfg.DataDir, "courses.db"), embClient)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	sessions, err := session.New(filepath.Join(cfg.DataDir, "sessions.db"), cfg.Agent.HistoryWindow)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewSearchTool(store, 5))
	registry.Register(tools.NewOutlineTool(store))

	llmClient := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger,
		llm.WithMaxTokens(cfg.Anthropic.MaxTokens))

	orchestrator := agent.New(logger, llmClient, registry, agent.Config{
		Model:        cfg.Anthropic.Model,
		SystemPrompt: prompts.BaseSystemPrompt(),
		MaxRounds:    cfg.Agent.MaxRounds,
		ToolTimeout:  time.Duration(cfg.Agent.ToolTimeoutSec) * time.Second,
	})

	return &components{
		store:        store,
		sessions:     sessions,
		orchestrator: orchestrator,
		registry:     registry,
		chunker:      ingest.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap),
		logger:       logger,
	}, nil
}

func (c *components) Close() {
	c.sessions.Close()
	c.store.Close()
}

// runAsk handles "ragchat ask <question>". It runs a single query through
// the full answer loop without starting the server or touching sessions.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	comp, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comp.Close()

	res, err := comp.orchestrator.Answer(ctx, question, nil)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, res.Content)
	if len(res.Sources) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Sources:")
		for _, src := range res.Sources {
			if src.Link != "" {
				fmt.Fprintf(stdout, "  - %s (%s)\n", src.Text, src.Link)
			} else {
				fmt.Fprintf(stdout, "  - %s\n", src.Text)
			}
		}
	}
	return nil
}

// runIngest handles "ragchat ingest <path>". Accepts a single course
// document or a directory of them.
func runIngest(ctx context.Context, stdout io.Writer, configPath, path string, force bool) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	comp, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comp.Close()

	ingester := ingest.New(comp.store, comp.chunker, logger)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	var stats *ingest.Stats
	if info.IsDir() {
		stats, err = ingester.IngestDir(ctx, path, force)
	} else {
		stats, err = ingester.IngestFile(ctx, path, force)
	}
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Fprintf(stdout, "Ingested %d course(s), %d chunk(s), skipped %d\n",
		stats.Courses, stats.Chunks, stats.Skipped)
	return nil
}

// runServe handles "ragchat serve": loads config, opens the stores,
// wires the answer loop, ingests any documents found in the docs
// directory, and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting ragchat",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logger now that the desired level and format are known.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			level, err = config.ParseLogLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Anthropic.Model,
		"max_rounds", cfg.Agent.MaxRounds,
	)

	comp, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comp.Close()

	// Auto-ingest course documents shipped alongside the data directory.
	docsDir := filepath.Join(cfg.DataDir, "docs")
	if info, err := os.Stat(docsDir); err == nil && info.IsDir() {
		ingester := ingest.New(comp.store, comp.chunker, logger)
		stats, err := ingester.IngestDir(ctx, docsDir, false)
		if err != nil {
			logger.Warn("startup ingest failed", "dir", docsDir, "error", err)
		} else {
			logger.Info("startup ingest complete",
				"courses", stats.Courses, "chunks", stats.Chunks, "skipped", stats.Skipped)
		}
	}

	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, comp.orchestrator, comp.sessions, comp.store, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}

	logger.Info("ragchat stopped", "uptime", buildinfo.Uptime().Round(time.Second))
	return nil
}
