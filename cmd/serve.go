package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramhq/engramd/internal/bootstrap"
	"github.com/engramhq/engramd/internal/bridge"
	"github.com/engramhq/engramd/internal/client"
	"github.com/engramhq/engramd/internal/config"
	"github.com/engramhq/engramd/internal/mcpserver"
	"github.com/engramhq/engramd/internal/tools"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP memory server on stdio (default command)",
		Long: `Serve the memory toolset to an MCP client over stdin/stdout.

The storage backend is opened lazily on the first memory operation, so
the server starts instantly even when the backend is slow or
misconfigured. Edits to the config file are picked up while serving;
changing the backend sections swaps the engine under the running tools.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", cfgPath, err)
	}
	if logLevelFlag == "" {
		setLogLevel(cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := initTracing(ctx, cfg)

	loops := bridge.NewManager()
	clients := client.NewManager(loops)

	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	source := tools.ClientSourceFunc(func(ctx context.Context) (*client.Client, error) {
		c := current.Load()
		return clients.Acquire(c.Fingerprint(), bootstrap.EngineFactory(c)), nil
	})

	reg := tools.NewRegistry()
	reg.Register(tools.NewAddMemoryTool(source))
	reg.Register(tools.NewSearchMemoryTool(source))
	reg.Register(tools.NewGetMemoryTool(source))
	reg.Register(tools.NewGetAllMemoriesTool(source))
	reg.Register(tools.NewUpdateMemoryTool(source))
	reg.Register(tools.NewDeleteMemoryTool(source))
	reg.Register(tools.NewDeleteAllMemoriesTool(source))
	reg.Register(tools.NewGetMemoryHistoryTool(source))

	if watcher, werr := config.NewWatcher(cfgPath); werr != nil {
		slog.Warn("config watcher unavailable", "error", werr)
	} else {
		watcher.OnChange(func(next *config.Config) {
			current.Store(next)
			if logLevelFlag == "" {
				setLogLevel(next.LogLevel)
			}
			// Swap eagerly so the first call after a reload does not pay
			// for the rebuild.
			clients.Acquire(next.Fingerprint(), bootstrap.EngineFactory(next))
		})
		if serr := watcher.Start(); serr != nil {
			slog.Warn("config watcher not started", "error", serr)
		} else {
			defer watcher.Stop()
		}
	}

	s := mcpserver.New(reg)
	slog.Info("engramd serving MCP on stdio",
		"version", mcpserver.Version,
		"tools", reg.Count(),
		"config", cfgPath,
	)

	serveErr := mcpserver.ServeStdio(ctx, s)

	// Drain in-flight work, then stop the loop. Both stages are bounded
	// so a hung backend cannot wedge shutdown.
	clients.Close(client.CleanupTimeout)
	loops.Shutdown(current.Load().ShutdownTimeout(bridge.DefaultShutdownTimeout))

	if shutdownTracing != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if terr := shutdownTracing(flushCtx); terr != nil {
			slog.Warn("tracing shutdown", "error", terr)
		}
	}

	slog.Info("engramd stopped")
	return serveErr
}
