package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-campus/internal/campus"
	"github.com/joeblew999/plat-campus/internal/db"
	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/logging"
	"github.com/joeblew999/plat-campus/internal/prefs"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/server"
)

// Options defines all CLI flags and env vars for the campus server.
// Flags: --host, --port, --data-dir, --data-url, --registry, --redis-addr, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_DATA_URL, ...
type Options struct {
	Host       string `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir    string `doc:"Directory holding the GeoJSON sources" default:".data"`
	DataURL    string `doc:"Base URL to fetch GeoJSON sources from instead of data-dir"`
	Registry   string `doc:"Layer registry YAML; the built-in campus registry when empty"`
	RedisAddr  string `doc:"Redis address for preferences and history; in-memory when empty"`
	DuckDB     string `name:"duckdb" doc:"DuckDB file name under data-dir for the features mirror; disabled when empty"`
	Watch      bool   `doc:"Reload layers when their source files change"`
	ClearDelay int    `doc:"Delay in milliseconds before an empty click clears the selection" default:"300"`
	SessionTTL int    `doc:"Minutes before an idle session is evicted" default:"30"`
	Debug      bool   `doc:"Human-readable debug logging"`
}

func loadRegistry(opts *Options) (*registry.Registry, error) {
	if opts.Registry != "" {
		return registry.Load(opts.Registry)
	}
	return registry.Default()
}

func newFetcher(opts *Options) (features.Fetcher, error) {
	if opts.DataURL == "" {
		return features.DirFetcher{Root: opts.DataDir}, nil
	}
	return features.NewCachedFetcher(features.NewHTTPFetcher(opts.DataURL), 64<<20, 5*time.Minute)
}

func newPrefs(ctx context.Context, opts *Options, log *zap.Logger) prefs.Store {
	rs := prefs.OpenRedis(opts.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
	if rs == nil {
		return prefs.NewMemoryStore()
	}
	if err := rs.Ping(ctx); err != nil {
		log.Warn("redis unavailable, keeping preferences in memory", zap.String("addr", opts.RedisAddr), zap.Error(err))
		rs.Close()
		return prefs.NewMemoryStore()
	}
	return rs
}

func newMap(ctx context.Context, opts *Options, log *zap.Logger) (*campus.Map, error) {
	reg, err := loadRegistry(opts)
	if err != nil {
		return nil, err
	}
	fetcher, err := newFetcher(opts)
	if err != nil {
		return nil, err
	}
	cfg := campus.Config{
		Registry:   reg,
		Fetcher:    fetcher,
		Prefs:      newPrefs(ctx, opts, log),
		ClearDelay: time.Duration(opts.ClearDelay) * time.Millisecond,
		SessionTTL: time.Duration(opts.SessionTTL) * time.Minute,
		Log:        log,
	}
	if opts.DataURL == "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.DuckDB != "" {
		cfg.DB = &db.Config{DataDir: opts.DataDir, DBName: opts.DuckDB, Extensions: []string{"spatial"}}
	}
	return campus.Start(ctx, cfg)
}

func newServer(opts *Options, m *campus.Map, log *zap.Logger) *server.Server {
	return server.New(server.Config{
		Host:    opts.Host,
		Port:    fmt.Sprintf("%d", opts.Port),
		DataDir: opts.DataDir,
		Remote:  opts.DataURL != "",
		Log:     log,
	}, m)
}

func exitOn(err error, what string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error %s: %v\n", what, err)
		os.Exit(1)
	}
}

func main() {
	// .env is optional; real env vars win.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		hooks.OnStart(func() {
			log := logging.Must(opts.Debug)
			defer log.Sync()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			m, err := newMap(ctx, opts, log)
			exitOn(err, "starting map")
			defer m.Close()

			if opts.Watch {
				if err := m.Watch(ctx); err != nil {
					log.Warn("file watching disabled", zap.Error(err))
				}
			}
			srv := newServer(opts, m, log)

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			loaded := 0
			for _, st := range m.Store.Report() {
				if st.Loaded {
					loaded++
				}
			}

			fmt.Println()
			fmt.Printf("plat-campus map server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			if opts.DataURL != "" {
				fmt.Printf("  Data:    %s\n", opts.DataURL)
			} else {
				fmt.Printf("  Data:    %s\n", opts.DataDir)
			}
			fmt.Printf("  Layers:  %d of %d loaded\n", loaded, len(m.Registry.Layers()))
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			hooks.OnStop(cancel)
			exitOn(srv.Run(ctx), "serving")
		})
	})

	cli.Root().Use = "campus"
	cli.Root().Short = "Interactive campus map service"
	cli.Root().Version = server.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			reg, err := loadRegistry(opts)
			exitOn(err, "loading registry")
			m, err := campus.Start(context.Background(), campus.Config{
				Registry: reg,
				Fetcher:  features.NewMapFetcher(nil),
			})
			exitOn(err, "building map")
			defer m.Close()
			spec := newServer(opts, m, zap.NewNop()).OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			exitOn(err, "marshaling spec")
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// layers subcommand: print the registry
	cli.Root().AddCommand(&cobra.Command{
		Use:   "layers",
		Short: "List the configured layers",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			reg, err := loadRegistry(opts)
			exitOn(err, "loading registry")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tGROUP\tCATEGORY\tROLE\tZ\tURL")
			for _, l := range reg.Layers() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", l.Name, l.Group, l.Category, l.Role, l.ZIndex, l.URL)
			}
			w.Flush()
		}),
	})

	// check subcommand: load every layer once and report
	cli.Root().AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load the base and interactive layers and print the load report",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			m, err := newMap(cmd.Context(), opts, logging.Must(opts.Debug))
			exitOn(err, "starting map")
			defer m.Close()

			loaded := 0
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LAYER\tLOADED\tFEATURES\tSKIPPED\tDEGRADED\tERROR")
			for _, st := range m.Store.Report() {
				if st.Loaded {
					loaded++
				}
				fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\t%s\n", st.Layer, st.Loaded, st.Features, st.Skipped, st.Degraded, st.Error)
			}
			w.Flush()
			idx, release := m.Search()
			fmt.Printf("\n%d layers loaded, %d documents indexed\n", loaded, idx.Len())
			release()
			if loaded == 0 {
				m.Close()
				os.Exit(1)
			}
		}),
	})

	// search subcommand: run one query against a freshly loaded map
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the campus from the command line",
		Args:  cobra.MinimumNArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			m, err := newMap(cmd.Context(), opts, logging.Must(opts.Debug))
			exitOn(err, "starting map")
			defer m.Close()

			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			idx, release := m.Search()
			page, err := idx.Query(strings.Join(args, " "), filter, limit, 0)
			release()
			exitOn(err, "searching")

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tLAYER\tID\tNAME")
			for _, r := range page.Results {
				fmt.Fprintf(w, "%.2f\t%s\t%s\t%s\n", r.Score, r.Layer, r.ID, r.Name)
			}
			w.Flush()
			fmt.Printf("\n%d of %d matches\n", len(page.Results), page.Total)
		}),
	}
	searchCmd.Flags().StringP("filter", "f", "", "Search filter id (all, university, poi, transport)")
	searchCmd.Flags().IntP("limit", "n", 10, "Maximum results to print")
	cli.Root().AddCommand(searchCmd)

	cli.Run()
}
