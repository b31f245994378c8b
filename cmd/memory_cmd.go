package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramhq/engramd/internal/bootstrap"
	"github.com/engramhq/engramd/internal/client"
	"github.com/engramhq/engramd/internal/config"
	"github.com/engramhq/engramd/internal/memdb"
)

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and maintain stored memories",
	}
	cmd.AddCommand(memoryAddCmd())
	cmd.AddCommand(memorySearchCmd())
	cmd.AddCommand(memoryGetCmd())
	cmd.AddCommand(memoryListCmd())
	cmd.AddCommand(memoryUpdateCmd())
	cmd.AddCommand(memoryDeleteCmd())
	cmd.AddCommand(memoryClearCmd())
	cmd.AddCommand(memoryHistoryCmd())
	return cmd
}

// scopeFlags attaches the shared scope flags; scopeFromFlags reads them
// back in the Run func.
func scopeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "user the memory belongs to")
	cmd.Flags().String("agent", "", "agent the memory belongs to")
	cmd.Flags().String("run", "", "run the memory belongs to")
}

func memoryAddCmd() *cobra.Command {
	var metadataJSON string
	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Store a memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			scope := scopeFromFlags(cmd)
			requireScope(scope)
			meta := parseMetadataFlag(metadataJSON)

			withEngine(func(ctx context.Context, eng client.Engine) {
				events, err := eng.Add(ctx, []memdb.Message{{Role: "user", Content: args[0]}}, scope, meta)
				exitOnErr(err)
				for _, ev := range events {
					fmt.Printf("%s  %s  %s\n", ev.Event, ev.ID, truncateStr(ev.Memory, 70))
				}
			})
		},
	}
	scopeFlags(cmd)
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "metadata as a JSON object")
	return cmd
}

func memorySearchCmd() *cobra.Command {
	var (
		topK       int
		filterJSON string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search over stored memories",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			scope := scopeFromFlags(cmd)
			requireScope(scope)
			filter, err := memdb.ParseFilter(filterJSON)
			exitOnErr(err)

			withEngine(func(ctx context.Context, eng client.Engine) {
				hits, err := eng.Search(ctx, args[0], scope, topK, filter)
				exitOnErr(err)
				printMemories(hits, jsonOutput, true)
			})
		},
	}
	scopeFlags(cmd)
	cmd.Flags().IntVarP(&topK, "top-k", "k", client.DefaultSearchLimit, "maximum results")
	cmd.Flags().StringVar(&filterJSON, "filters", "", "metadata filter as a JSON object")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func memoryGetCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Fetch one memory by ID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, eng client.Engine) {
				mem, err := eng.Get(ctx, args[0])
				if errors.Is(err, memdb.ErrNotFound) {
					fmt.Fprintf(os.Stderr, "Memory not found: %s\n", args[0])
					os.Exit(1)
				}
				exitOnErr(err)
				printMemories([]memdb.Memory{*mem}, jsonOutput, false)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func memoryListCmd() *cobra.Command {
	var (
		limit      int
		filterJSON string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories in a scope",
		Run: func(cmd *cobra.Command, args []string) {
			scope := scopeFromFlags(cmd)
			requireScope(scope)
			filter, err := memdb.ParseFilter(filterJSON)
			exitOnErr(err)

			withEngine(func(ctx context.Context, eng client.Engine) {
				mems, err := eng.GetAll(ctx, scope, filter, limit)
				exitOnErr(err)
				printMemories(mems, jsonOutput, false)
			})
		},
	}
	scopeFlags(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 = all)")
	cmd.Flags().StringVar(&filterJSON, "filters", "", "metadata filter as a JSON object")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func memoryUpdateCmd() *cobra.Command {
	var metadataJSON string
	cmd := &cobra.Command{
		Use:   "update [id] [text]",
		Short: "Rewrite a memory's content",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			meta := parseMetadataFlag(metadataJSON)
			withEngine(func(ctx context.Context, eng client.Engine) {
				mem, err := eng.Update(ctx, args[0], args[1], meta)
				if errors.Is(err, memdb.ErrNotFound) {
					fmt.Fprintf(os.Stderr, "Memory not found: %s\n", args[0])
					os.Exit(1)
				}
				exitOnErr(err)
				fmt.Printf("Updated %s: %s\n", mem.ID, truncateStr(mem.Text, 70))
			})
		},
	}
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "metadata as a JSON object (replaces existing)")
	return cmd
}

func memoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, eng client.Engine) {
				mem, err := eng.Delete(ctx, args[0])
				if errors.Is(err, memdb.ErrNotFound) {
					fmt.Fprintf(os.Stderr, "Memory not found: %s\n", args[0])
					os.Exit(1)
				}
				exitOnErr(err)
				fmt.Printf("Deleted %s: %s\n", mem.ID, truncateStr(mem.Text, 70))
			})
		},
	}
}

func memoryClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory in a scope",
		Run: func(cmd *cobra.Command, args []string) {
			scope := scopeFromFlags(cmd)
			requireScope(scope)
			withEngine(func(ctx context.Context, eng client.Engine) {
				n, err := eng.DeleteAll(ctx, scope)
				exitOnErr(err)
				fmt.Printf("Deleted %d memories\n", n)
			})
		},
	}
	scopeFlags(cmd)
	return cmd
}

func memoryHistoryCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show the change log of a memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, eng client.Engine) {
				entries, err := eng.History(ctx, args[0])
				exitOnErr(err)
				printHistory(entries, jsonOutput)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// --- Shared helpers ---

// withEngine opens the engine from config, runs the operation and closes
// everything. CLI commands are synchronous single shots, so they use the
// engine directly rather than going through the background loop.
func withEngine(fn func(ctx context.Context, eng client.Engine)) {
	cfg, err := config.LoadOrDefault(resolveConfigPath())
	exitOnErr(err)
	exitOnErr(cfg.Validate())

	ctx := context.Background()
	eng, err := bootstrap.Build(ctx, cfg)
	exitOnErr(err)
	defer eng.Close()

	fn(ctx, eng)
}

// scopeFromFlags reads the scope flags back off the command.
func scopeFromFlags(cmd *cobra.Command) memdb.Scope {
	user, _ := cmd.Flags().GetString("user")
	agent, _ := cmd.Flags().GetString("agent")
	run, _ := cmd.Flags().GetString("run")
	return memdb.Scope{UserID: user, AgentID: agent, RunID: run}
}

// requireScope refuses scope-wide commands without any scope at all, so a
// missing flag can never address every user's memories.
func requireScope(scope memdb.Scope) {
	if scope.Empty() {
		fmt.Fprintln(os.Stderr, "Error: pass at least one of --user, --agent, --run")
		os.Exit(1)
	}
}

func parseMetadataFlag(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid metadata JSON: %s\n", err)
		os.Exit(1)
	}
	return meta
}

func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func printMemories(mems []memdb.Memory, jsonOutput, withScore bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(mems, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(mems) == 0 {
		fmt.Println("No memories found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if withScore {
		fmt.Fprintf(tw, "ID\tSCORE\tMEMORY\tUPDATED\n")
		for _, m := range mems {
			fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\n",
				m.ID, m.Score, truncateStr(m.Text, 60), m.UpdatedAt.Format(time.DateTime))
		}
	} else {
		fmt.Fprintf(tw, "ID\tMEMORY\tCREATED\tUPDATED\n")
		for _, m := range mems {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				m.ID, truncateStr(m.Text, 60),
				m.CreatedAt.Format(time.DateTime), m.UpdatedAt.Format(time.DateTime))
		}
	}
	tw.Flush()
}

func printHistory(entries []memdb.HistoryEntry, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(entries) == 0 {
		fmt.Println("No history found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "EVENT\tOLD\tNEW\tWHEN\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Event, truncateStr(e.OldMemory, 40), truncateStr(e.NewMemory, 40),
			e.CreatedAt.Format(time.DateTime))
	}
	tw.Flush()
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
