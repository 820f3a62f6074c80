// fetch is a command-line client for the market data service: it runs the
// same gate, fallback chain and broadcaster as the server, without HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gurram46/Artha-Agent-sub001/internal/app"
	"github.com/gurram46/Artha-Agent-sub001/internal/config"
	"github.com/gurram46/Artha-Agent-sub001/internal/marketdata"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
	"github.com/gurram46/Artha-Agent-sub001/internal/version"
)

var (
	configPath string
	storeFlag  string
	pretty     bool
	verbose    bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fetch",
		Short:         "Query market quotes through the sync core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "path to config.yaml or config.json")
	root.PersistentFlags().StringVar(&storeFlag, "store", "", "override the snapshot store driver (sqlite, file, redis, postgres, memory, none)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", true, "indent JSON output")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(topCmd(), detailCmd(), seriesCmd(), watchCmd(), snapshotCmd(), versionCmd())
	return root
}

// withApp loads config, builds an App and closes it after fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, cfg config.Config) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if storeFlag != "" {
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(storeFlag))
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.NewLogger(os.Stderr, cfg))
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(cctx)
	}()
	return fn(ctx, a, cfg)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func topCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Print the bulk quote snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ config.Config) error {
				return writeJSON(cmd.OutOrStdout(), a.Service.GetTopQuotes(ctx))
			})
		},
	}
}

func detailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail <id>",
		Short: "Print one instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ config.Config) error {
				q, err := a.Service.GetDetail(ctx, args[0])
				if q == nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), q)
			})
		},
	}
}

func seriesCmd() *cobra.Command {
	var window string
	cmd := &cobra.Command{
		Use:   "series <id>",
		Short: "Print the historical series for one instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := provider.ParseWindow(window)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App, _ config.Config) error {
				s, err := a.Service.GetSeries(ctx, args[0], w)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), s)
			})
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", provider.DefaultWindow.String(), "series window: 1D, 1W, 1M, 3M, 6M, 1Y, 5Y")
	return cmd
}

func watchCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to the poll loop and print each snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ config.Config) error {
				ch := make(chan provider.Snapshot, 1)
				err := a.Service.Subscribe("cli-watch", marketdata.HandlerFunc(func(s provider.Snapshot) {
					select {
					case ch <- s:
					default:
					}
				}))
				if err != nil {
					return err
				}
				defer a.Service.Unsubscribe("cli-watch")

				for seen := 0; count <= 0 || seen < count; seen++ {
					select {
					case <-ctx.Done():
						return nil
					case s := <-ch:
						fmt.Fprintf(cmd.ErrOrStderr(), "snapshot source=%s quotes=%d degraded=%t state=%s\n",
							s.Source, s.Len(), s.Degraded, a.Service.State())
						if err := writeJSON(cmd.OutOrStdout(), s); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "stop after n snapshots; 0 runs until interrupted")
	return cmd
}

type snapshotInfo struct {
	Source    provider.Source `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
	AgeSec    float64         `json:"age_sec"`
	Usable    bool            `json:"usable"`
	Quotes    int             `json:"quotes"`
	IDs       []string        `json:"ids,omitempty"`
}

func snapshotCmd() *cobra.Command {
	var withIDs bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect the persisted snapshot without calling the upstream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, cfg config.Config) error {
				s, age, err := a.Fallback.Peek(ctx)
				if err != nil {
					return err
				}
				info := snapshotInfo{
					Source:    s.Source,
					FetchedAt: s.FetchedAt,
					AgeSec:    age.Seconds(),
					Usable:    age <= app.SyncConfig(cfg).PersistenceWindow,
					Quotes:    s.Len(),
				}
				if withIDs {
					for _, q := range s.Quotes {
						info.IDs = append(info.IDs, q.ID)
					}
				}
				return writeJSON(cmd.OutOrStdout(), info)
			})
		},
	}
	cmd.Flags().BoolVar(&withIDs, "ids", false, "list instrument ids")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fetch %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		},
	}
}
