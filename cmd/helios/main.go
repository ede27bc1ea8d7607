package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mtzanidakis/helios/internal/bus"
	"github.com/mtzanidakis/helios/internal/config"
	"github.com/mtzanidakis/helios/internal/engine"
	"github.com/mtzanidakis/helios/internal/llm"
	"github.com/mtzanidakis/helios/internal/routing"
	"github.com/mtzanidakis/helios/internal/scheduler"
	"github.com/mtzanidakis/helios/internal/store"
	"github.com/mtzanidakis/helios/internal/telegram"
	"github.com/mtzanidakis/helios/internal/vault"
	"github.com/mtzanidakis/helios/internal/web"
	"github.com/mtzanidakis/helios/internal/workspace"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("helios %s\n", version)
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	case "run":
		if err := runOnce(os.Args[2:]); err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: helios <command>\n\nCommands:\n  serve                        Start the Helios service\n  run <name> <description>     Execute one project and exit\n  version                      Print version\n")
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting helios", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	b, err := bus.New(cfg.Bus)
	if err != nil {
		return fmt.Errorf("init bus: %w", err)
	}
	defer b.Close()
	slog.Info("bus started", "port", cfg.Bus.Port)

	events, err := bus.NewClient(b)
	if err != nil {
		return fmt.Errorf("init bus client: %w", err)
	}
	defer events.Close()

	// Credential vault
	var v *vault.Vault
	if cfg.Vault.Passphrase != "" {
		v = vault.New(cfg.Vault.Passphrase)
	} else {
		slog.Warn("vault passphrase not set, secrets disabled")
	}

	// Project workspaces
	ws, err := workspace.NewManager(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	// LLM provider; the API key can come from config, env, or the vault
	llmCfg := cfg.LLM
	if llmCfg.APIKey == "" && v != nil {
		if sealed, err := db.GetSecret("llm_api_key"); err == nil && sealed != nil {
			if key, err := v.Open(sealed); err == nil {
				llmCfg.APIKey = string(key)
			}
		}
	}
	client := llm.NewHTTP(llmCfg)
	if llmCfg.BaseURL == "" {
		slog.Warn("llm provider not configured, workers will use fallbacks")
	}

	// Engine
	table := routing.NewTable(routing.NewHeuristics(cfg.Routing))
	eng := engine.New(cfg.Engine, table, client, db, ws, events)
	defer eng.Shutdown()

	// Scheduler
	sched := scheduler.New(db, eng, cfg.Scheduler)
	go sched.Start(ctx)

	// Telegram notifier
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		notifier, err := telegram.NewNotifier(cfg.Telegram)
		if err != nil {
			return fmt.Errorf("init telegram notifier: %w", err)
		}
		if err := notifier.Start(events); err != nil {
			return fmt.Errorf("start telegram notifier: %w", err)
		}
		defer notifier.Stop()
	} else {
		slog.Info("telegram not configured, notifications disabled")
	}

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, b, eng, sched, ws, v, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	return nil
}

// runOnce executes a single project to completion without the service
// surfaces: no bus, no web, no scheduler.
func runOnce(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: helios run <name> <description>")
	}
	name := args[0]
	description := strings.Join(args[1:], " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	ws, err := workspace.NewManager(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	table := routing.NewTable(routing.NewHeuristics(cfg.Routing))
	eng := engine.New(cfg.Engine, table, llm.NewHTTP(cfg.LLM), db, ws, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := eng.Start(ctx, name, description)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	go func() {
		<-ctx.Done()
		run.Stop()
	}()

	if err := run.Wait(context.Background()); err != nil {
		return fmt.Errorf("run finished with error: %w", err)
	}

	final := run.Snapshot().FinalOutput
	fmt.Println(final)
	fmt.Printf("\nWorkspace: %s\n", ws.ProjectDir(run.ID))
	return nil
}
