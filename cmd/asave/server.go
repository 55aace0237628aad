package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/asave/internal/api"
	"github.com/kalambet/asave/internal/engine"
	"github.com/kalambet/asave/internal/ingest"
	"github.com/kalambet/asave/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the asave HTTP API server (foreground)",
	Long: `Start the HTTP API, the background indexing worker and, optionally, a
watcher that queues new files dropped into the documents directory and an MCP
server on stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd, watch, withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running asave server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show asave system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		showStatus(cmd.Context(), client)
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("watch", false, "queue files added to the documents directory for indexing")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "asave.pid")
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

func runServer(cmd *cobra.Command, watch, withMCP bool) error {
	printStep("asave version %s", version)
	cfg := appConfig

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

	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := engine.EnsureReady(ctx, a.engine, cfg.LLM.Model, cfg.LLM.EmbedModel, stderr); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Storage.DocumentsDir, 0o755); err != nil {
		return fmt.Errorf("creating documents directory: %w", err)
	}
	a.indexer.Confine()

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if cfg.Server.APIToken == "" {
		logger.Warn("server.api_token is not set; API routes are unauthenticated")
	}

	handler := api.NewHandler(api.AppDeps{
		Service:   a.service,
		Store:     a.store,
		Token:     cfg.Server.APIToken,
		RulesPath: cfg.Storage.RulesPath,
		RulesDir:  cfg.Storage.RulesOutputDir,
		Resolve:   a.indexer.Resolve,
		Logger:    logger.Named("api"),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	worker := ingest.NewWorker(a.store, a.indexer, 500*time.Millisecond, logger.Named("worker"))
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if watch {
		watcher := ingest.NewWatcher(cfg.Storage.DocumentsDir, a.store, 0, logger.Named("watcher"))
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Service:   a.service,
			RulesPath: cfg.Storage.RulesPath,
			RulesDir:  cfg.Storage.RulesOutputDir,
			Logger:    logger.Named("mcp"),
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", zap.Error(err))
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", addr), zap.String("provider", a.engine.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	pidPath := pidFilePath(appConfig.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("asave is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop asave (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to asave (PID %d)", pid)
	return nil
}

type healthResponse struct {
	Status  string         `json:"status"`
	Session bool           `json:"session"`
	Jobs    map[string]int `json:"jobs"`
}

func showStatus(ctx context.Context, client *apiClient) {
	cfg := appConfig

	var health healthResponse
	resp, err := client.get(ctx, "/health")
	running := err == nil
	if running {
		if err := decodeJSON(resp, &health); err != nil {
			printStatus("Server", "error (%v)", err)
			running = false
		} else {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printStatus("Session", "%s", loadedLabel(health.Session))
			if health.Jobs != nil {
				printStatus("Index jobs", "%s", jobSummary(health.Jobs))
			}
		}
	} else {
		printStatus("Server", "stopped")
	}

	printStatus("Provider", "%s", cfg.LLM.Provider)
	printStatus("Model", "%s", cfg.LLM.Model)
	printStatus("Embed model", "%s", cfg.LLM.EmbedModel)
	if err := cfg.Validate(); err != nil {
		printStatus("Config", "%s", colorize(colorYellow, err.Error()))
	}

	if running {
		if resp, err := client.get(ctx, "/documents"); err == nil {
			var docs []docStatus
			if err := decodeJSON(resp, &docs); err == nil {
				printStatus("Documents", "%s", documentSummary(docs))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Documents dir", "%s", cfg.Storage.DocumentsDir)
}

type docStatus struct {
	Status string `json:"status"`
}

// documentSummary renders per-status document counts, e.g. "3 (2 indexed, 1 failed)".
func documentSummary(docs []docStatus) string {
	if len(docs) == 0 {
		return "0"
	}
	counts := make(map[string]int)
	for _, d := range docs {
		counts[d.Status]++
	}
	var parts []string
	for _, st := range []string{storage.DocumentIndexed, storage.DocumentPending, storage.DocumentFailed} {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, st))
		}
	}
	return fmt.Sprintf("%d (%s)", len(docs), strings.Join(parts, ", "))
}

// jobSummary renders queued work, e.g. "1 pending, 1 running, 2 failed".
func jobSummary(counts map[string]int) string {
	var parts []string
	for _, st := range []string{"pending", "running", "failed"} {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, st))
		}
	}
	if len(parts) == 0 {
		return "idle"
	}
	return strings.Join(parts, ", ")
}

func loadedLabel(loaded bool) string {
	if loaded {
		return "standards loaded"
	}
	return "no standards loaded"
}
