// Command annotator watches planning documents and writes AI review
// comments next to the lines they refer to.
//
//	annotator --mode project            # GitHub ProjectV2 board
//	annotator --mode dir --dir backlog  # directory of Markdown items
//	annotator --mode file --path plan.md --manual
//	annotator --mode notion
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"annotator/internal/annotator"
	"annotator/internal/common/fault"
	"annotator/internal/config"
	"annotator/internal/events"
	"annotator/internal/llm"
	"annotator/internal/server"
	"annotator/internal/snapshot"
	"annotator/internal/source"
	"annotator/internal/source/file"
	"annotator/internal/source/github"
	"annotator/internal/source/notion"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	if err := run(logger); err != nil {
		logger.Printf("annotator: %v", err)
		os.Exit(1)
	}
}

func run(logger *log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	bindFlags(cfg)
	pflag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompts, err := config.LoadPrompts(cfg.PromptDir, cfg.MultiItem())
	if err != nil {
		return err
	}
	store, err := snapshot.Open(ctx, cfg.Snapshot)
	if err != nil {
		return fault.Config("open snapshot store", err)
	}
	client, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return fault.Config("llm", err)
	}
	defer client.Close()

	hub := events.NewHub()
	var (
		loop  func(context.Context) error
		items server.ItemSource
	)
	if cfg.MultiItem() {
		src, err := openProject(cfg)
		if err != nil {
			return err
		}
		a, err := annotator.New(annotator.Options{
			Source:   src,
			LLM:      client,
			Store:    store,
			Prompts:  annotator.Prompts(prompts),
			Hub:      hub,
			Logger:   logger,
			Interval: cfg.Interval,
		})
		if err != nil {
			return err
		}
		if err := a.Prime(ctx); err != nil {
			logger.Printf("annotator: initial snapshot: %v", err)
		}
		loop, items = a.Run, a.Tracker()
	} else {
		doc, id, err := openDocument(cfg)
		if err != nil {
			return err
		}
		w, err := annotator.NewWatcher(annotator.WatcherOptions{
			Doc:      doc,
			ID:       id,
			LLM:      client,
			Store:    store,
			Prompt:   prompts.Document,
			Settle:   cfg.SettleWindow(),
			Interval: cfg.Interval,
			Manual:   cfg.Manual,
			Hub:      hub,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		if err := w.Prime(ctx); err != nil {
			logger.Printf("annotator: initial snapshot: %v", err)
		}
		loop, items = w.Run, w
	}

	logger.Printf("annotator: mode=%s llm=%s snapshots=%s interval=%s", cfg.Mode, client.Name(), cfg.Snapshot.Backend, cfg.Interval)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop(gctx) })
	if cfg.StatusAddr != "" {
		var cache server.CacheReporter
		if cs, ok := store.(*snapshot.CachedStore); ok {
			cache = cs
		}
		srv := server.New(cfg.StatusAddr, server.NewHandler(items, hub, cache, logger), logger)
		g.Go(func() error { return srv.Run(gctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Printf("annotator: stopped")
	return nil
}

// bindFlags registers flags whose defaults come from the environment, so a
// flag only overrides what it is given.
func bindFlags(cfg *config.Config) {
	pflag.StringVarP(&cfg.Mode, "mode", "m", cfg.Mode, "what to watch: project, dir, file or notion")
	pflag.DurationVarP(&cfg.Interval, "interval", "i", cfg.Interval, "polling interval")
	pflag.DurationVar(&cfg.Settle, "settle", cfg.Settle, "quiet time before reacting to an edit (0 = mode default)")
	pflag.BoolVar(&cfg.Manual, "manual", cfg.Manual, "only react to unhandled \"user:\" requests")
	pflag.StringVar(&cfg.PromptDir, "prompts", cfg.PromptDir, "directory with prompt files")
	pflag.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "address for the status server, empty to disable")
	pflag.StringVarP(&cfg.Files.Path, "path", "p", cfg.Files.Path, "document to watch in file mode")
	pflag.StringVarP(&cfg.Files.Dir, "dir", "d", cfg.Files.Dir, "directory of items in dir mode")
	pflag.StringVar(&cfg.Files.DescriptionFile, "description-file", cfg.Files.DescriptionFile, "project description file inside --dir")
	pflag.StringVar(&cfg.LLM.Provider, "llm", cfg.LLM.Provider, "model provider: gemini, groq or fake")
	pflag.StringVar(&cfg.LLM.Model, "model", cfg.LLM.Model, "model name")
	pflag.StringVar(&cfg.Snapshot.Backend, "snapshots", cfg.Snapshot.Backend, "snapshot backend: memory, file, postgres, s3 or redis")
	pflag.StringVar(&cfg.Snapshot.Dir, "snapshot-dir", cfg.Snapshot.Dir, "directory for the file snapshot backend")
	pflag.IntVar(&cfg.Snapshot.CacheSize, "snapshot-cache", cfg.Snapshot.CacheSize, "LRU entries in front of the snapshot backend (0 = off)")
}

func openProject(cfg *config.Config) (source.Project, error) {
	if cfg.Mode == config.ModeProject {
		return github.New(cfg.GitHub)
	}
	return file.Dir{Root: cfg.Files.Dir, DescriptionFile: cfg.Files.DescriptionFile}, nil
}

func openDocument(cfg *config.Config) (source.Document, string, error) {
	if cfg.Mode == config.ModeNotion {
		p, err := notion.New(cfg.Notion)
		if err != nil {
			return nil, "", err
		}
		return p, "notion:" + cfg.Notion.PageName, nil
	}
	abs, err := filepath.Abs(cfg.Files.Path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve document path: %w", err)
	}
	return file.Document{Path: abs}, filepath.Base(abs), nil
}
