package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramhq/engramd/internal/bootstrap"
	"github.com/engramhq/engramd/internal/config"
	"github.com/engramhq/engramd/internal/mcpserver"
)

func doctorCmd() *cobra.Command {
	var ping bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(ping)
		},
	}
	cmd.Flags().BoolVar(&ping, "ping", false, "also open the backend and ping it")
	return cmd
}

func runDoctor(ping bool) {
	fmt.Println("engramd doctor")
	fmt.Printf("  Version:  %s\n", mcpserver.Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if verr := cfg.Validate(); verr != nil {
		fmt.Printf("  Config invalid: %s\n", verr)
	}

	// Data directory
	fmt.Println()
	dataDir := cfg.ResolvedDataDir()
	fmt.Printf("  Data dir: %s", dataDir)
	if _, err := os.Stat(dataDir); err != nil {
		fmt.Println(" (will be created)")
	} else {
		fmt.Println(" (OK)")
	}

	// Backend
	fmt.Println()
	fmt.Println("  Backend:")
	fmt.Printf("    %-12s %s\n", "Embedder:", describeEmbedder(cfg.Embedder))
	fmt.Printf("    %-12s %s\n", "Vector:", describeVector(cfg.Vector))

	// Tracing
	fmt.Println()
	if cfg.Tracing.Enabled {
		fmt.Printf("  Tracing:  %s (%s)\n", cfg.Tracing.Endpoint, cfg.Tracing.Protocol)
	} else {
		fmt.Println("  Tracing:  disabled")
	}

	if ping {
		fmt.Println()
		fmt.Print("  Ping:     ")
		pingBackend(cfg)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func describeEmbedder(e config.EmbedderConfig) string {
	switch e.Provider {
	case "openai":
		key := "(no api key)"
		if e.APIKey != "" {
			key = maskedKey(e.APIKey)
		}
		return fmt.Sprintf("openai %s %s", e.Model, key)
	case "hash":
		return "hash (offline, development only)"
	default:
		return fmt.Sprintf("%s (UNKNOWN)", e.Provider)
	}
}

func describeVector(v config.VectorConfig) string {
	switch v.Provider {
	case "chromem":
		if v.Path == "memory" {
			return "chromem (in-memory, not persisted)"
		}
		return "chromem (embedded)"
	case "pgvector":
		if v.DSN == "" {
			return "pgvector (NO DSN)"
		}
		return "pgvector"
	default:
		return fmt.Sprintf("%s (UNKNOWN)", v.Provider)
	}
}

// pingBackend opens the full engine and round-trips the store and index.
func pingBackend(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eng, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		fmt.Printf("FAILED (%s)\n", err)
		return
	}
	defer eng.Close()

	if err := eng.Ping(ctx); err != nil {
		fmt.Printf("FAILED (%s)\n", err)
		return
	}
	fmt.Println("OK")
}

func maskedKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", 4) + key[len(key)-4:]
}
