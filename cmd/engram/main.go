// Command engram is a CLI front end for the Engram memory engine. It
// wires configuration, storage, the vector index, and LLM providers
// into an engine and exposes the four core operations as subcommands:
//
//	engram append  -user u1 -role user "I went hiking in the Alps"
//	engram history -user u1 -limit 20
//	engram search  -user u1 -limit 5 "what did we discuss about hiking"
//	engram clear   -user u1
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/engramdev/engram/internal/config"
	"github.com/engramdev/engram/internal/engine"
	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/internal/storage/sqlite"
	"github.com/engramdev/engram/internal/vector"
	"github.com/engramdev/engram/pkg/types"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("engram ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if err := run(cmd, args); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: engram <append|history|search|clear> [flags] [args]")
	fmt.Fprintln(os.Stderr, "  set ENGRAM_CONFIG to point at a YAML config file")
}

func run(cmd string, args []string) error {
	cfg, err := config.Load(os.Getenv("ENGRAM_CONFIG"))
	if err != nil {
		return err
	}

	eng, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()

	switch cmd {
	case "append":
		return runAppend(ctx, eng, args)
	case "history":
		return runHistory(ctx, eng, args)
	case "search":
		return runSearch(ctx, eng, args)
	case "clear":
		return runClear(ctx, eng, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// buildEngine assembles the engine from configuration. The returned
// cleanup drains background work and closes the store and index.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DataPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := sqlite.Open(cfg.Storage.DataPath)
	if err != nil {
		return nil, nil, err
	}

	opts := engine.Options{
		Store:            store,
		SummaryThreshold: cfg.Memory.SummaryThreshold,
		RetentionDays:    cfg.Memory.RetentionDays,
	}

	completer, embedder, err := buildLLM(cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if cfg.LLM.EnableSummarizer {
		opts.Summarizer = completer
	}
	if cfg.LLM.EnableReranker {
		opts.Reranker = completer
	}

	var index vector.Index
	if embedder != nil {
		index, err = buildIndex(cfg)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		opts.Embedder = embedder
		opts.Index = index
	}

	eng, err := engine.New(opts)
	if err != nil {
		if index != nil {
			index.Close()
		}
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		eng.Close()
		if index != nil {
			index.Close()
		}
		store.Close()
	}
	return eng, cleanup, nil
}

func buildLLM(cfg *config.Config) (llm.TextGenerator, llm.EmbeddingGenerator, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		client := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:        cfg.LLM.OllamaURL,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		})
		if cfg.LLM.EmbeddingModel == "" {
			return client, nil, nil
		}
		return client, client, nil
	case "openai":
		client := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:         cfg.LLM.OpenAIAPIKey,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		})
		if cfg.LLM.EmbeddingModel == "" {
			return client, nil, nil
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func buildIndex(cfg *config.Config) (vector.Index, error) {
	switch cfg.Storage.VectorBackend {
	case "chromem":
		return vector.OpenChromem(cfg.Storage.VectorPath)
	case "pgvector":
		return vector.OpenPgvector(cfg.Storage.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Storage.VectorBackend)
	}
}

func runAppend(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("append", flag.ExitOnError)
	user := fs.String("user", "", "user ID")
	role := fs.String("role", "user", "message role: user or assistant")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("exactly one content argument is required")
	}

	msg, err := eng.Append(ctx, *user, types.Role(*role), fs.Arg(0))
	if err != nil {
		return err
	}
	// Let compaction and retention finish before the process exits.
	eng.WaitBackground()

	fmt.Println(msg.ID)
	return nil
}

func runHistory(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	user := fs.String("user", "", "user ID")
	limit := fs.Int("limit", 0, "most recent N messages (0 = all)")
	fs.Parse(args)

	msgs, err := eng.History(ctx, *user, *limit)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Printf("%d %s: %s\n", m.Timestamp, m.Role, m.Content)
	}
	return nil
}

func runSearch(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	user := fs.String("user", "", "user ID")
	limit := fs.Int("limit", 5, "maximum results")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("exactly one query argument is required")
	}

	results, err := eng.Search(ctx, *user, fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Println(r)
	}
	return nil
}

func runClear(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	user := fs.String("user", "", "user ID")
	fs.Parse(args)

	return eng.Clear(ctx, *user)
}
