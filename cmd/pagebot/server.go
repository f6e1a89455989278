package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/merezhko/pagebot/internal/api"
	"github.com/merezhko/pagebot/internal/config"
	"github.com/merezhko/pagebot/internal/interlog"
	"github.com/merezhko/pagebot/internal/responder"
	"github.com/merezhko/pagebot/internal/scheduler"
	"github.com/merezhko/pagebot/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pagebot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pagebot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pagebot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "pagebot.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "pagebot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.API.Token == "" {
		return fmt.Errorf("missing API token for the management endpoints. Set PAGEBOT_API_TOKEN")
	}

	// Refuse to double-start. The health endpoint is the source of truth,
	// the PID file only names the culprit.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signalContext()
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	rsp := newResponder(ctx, cfg)
	respond := func(ctx context.Context, opts responder.Options) (responder.Summary, error) {
		return rsp.Respond(ctx, opts)
	}

	ilog := interlog.New(filepath.Join(cfg.Storage.DataDir, "interactions"))
	deps := api.AppDeps{
		Store:        store,
		Respond:      respond,
		Interactions: ilog,
		Token:        cfg.API.Token,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewAppHandler(deps),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("pagebot listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		mcpSrv := api.NewMCPServer(deps, version)
		slog.Info("MCP server started (stdio transport)")
		if err := api.ServeMCP(gctx, mcpSrv); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	if cfg.Respond.Cron != "" {
		sched := scheduler.New(cfg.Respond.Cron, respond)
		if err := sched.Start(gctx); err != nil {
			stop()
			g.Wait()
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	}

	err = g.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "shut down")
		return nil
	}
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("pagebot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop pagebot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to pagebot (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Ollama.Model == "" {
		printStatus("Replies", "static")
	} else {
		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Replies", "model %s (Ollama not running)", cfg.Ollama.Model)
		} else {
			ollamaResp.Body.Close()
			printStatus("Replies", "model %s via %s", cfg.Ollama.Model, cfg.Ollama.BaseURL)
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err == nil {
		counts, countErr := store.CountByStatus()
		if countErr == nil {
			printStatus("Queue", "%d draft, %d approved, %d published",
				counts[storage.StatusDraft],
				counts[storage.StatusApproved],
				counts[storage.StatusPublished],
			)
		}
		store.Close()
	}

	printStatus("Respond cron", "%s", cronLabel(cfg.Respond.Cron))
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func cronLabel(spec string) string {
	if spec == "" {
		return "disabled"
	}
	return spec
}
