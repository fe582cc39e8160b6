package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/matijazezelj/terramap/internal/config"
	"github.com/matijazezelj/terramap/internal/engine"
	"github.com/matijazezelj/terramap/internal/graph"
	"github.com/matijazezelj/terramap/internal/ingest"
	"github.com/matijazezelj/terramap/internal/pipeline"
	"github.com/matijazezelj/terramap/internal/provider"
	"github.com/matijazezelj/terramap/internal/server"
)

var (
	version   = "dev"
	cfgFile   string
	dbPath    string
	logFormat string
	logLevel  string
	logger    *slog.Logger
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "terramap",
		Short: "Terramap — infrastructure graph transformation",
		Long:  "Resolves references in parsed infrastructure definitions and transforms the resource graph into an architecture diagram model.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			opts := &slog.HandlerOptions{Level: level}
			switch logFormat {
			case "json":
				logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
			case "text":
				logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
			default:
				return fmt.Errorf("invalid --log-format %q (use: text, json)", logFormat)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./terramap.yaml)")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "archive database path (overrides config)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text, json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		transformCmd(),
		runsCmd(),
		providersCmd(),
		syncCmd(),
		serveCmd(),
		versionCmd(),
		completionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func openArchive(cfg *config.Config) *graph.Archive {
	path := cfg.Storage.Path
	if dbPath != "" {
		path = dbPath
	}

	archive, err := graph.OpenArchive(path)
	if err != nil {
		logger.Error("opening archive", "error", err)
		os.Exit(1)
	}
	if err := archive.Init(context.Background()); err != nil {
		logger.Error("initializing archive", "error", err)
		os.Exit(1)
	}
	return archive
}

// --- transform ---

func transformCmd() *cobra.Command {
	var providerName, rulesFile, format, outPath string
	var strict, save bool
	var maxIterations int
	var fromRun int64

	cmd := &cobra.Command{
		Use:   "transform [input-file]",
		Short: "Resolve references and transform a parsed infrastructure graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			var doc *ingest.Document
			var source string
			var err error
			switch {
			case fromRun > 0:
				archive := openArchive(cfg)
				doc, source, err = documentFromRun(cmd, archive, fromRun)
				_ = archive.Close()
				if err != nil {
					return err
				}
			case len(args) == 1:
				source = filepath.Base(args[0])
				doc, err = ingest.Load(args[0])
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("provide an input file or --from-run")
			}

			name := cfg.Provider
			if doc.Provider != "" {
				name = doc.Provider
			}
			if providerName != "" {
				name = providerName
			}

			var pc *provider.Context
			if rulesFile != "" {
				pc, err = provider.LoadFile(rulesFile)
			} else {
				pc, err = provider.Load(name)
			}
			if err != nil {
				return err
			}

			opts := engine.Options{
				MaxIterations: cfg.Resolve.MaxIterations,
				Strict:        cfg.Resolve.Strict || strict,
			}
			if maxIterations > 0 {
				opts.MaxIterations = maxIterations
			}

			eng, err := engine.New(pc, pipeline.NewRegistry(), opts, logger)
			if err != nil {
				return err
			}
			res, err := eng.Run(doc)
			if err != nil {
				return err
			}

			for _, w := range res.Warnings {
				logger.Warn("transformation warning", "kind", w.Kind, "node", w.Node, "detail", w.Detail)
			}

			export := graph.NewDocument(res.Graph, res.Snapshot, res.Provider, res.Warnings)

			if save {
				archive := openArchive(cfg)
				defer archive.Close() //nolint:errcheck // best-effort cleanup
				id, err := archive.SaveRun(cmd.Context(), export, source)
				if err != nil {
					return fmt.Errorf("archiving run: %w", err)
				}
				logger.Info("run archived", "id", id)
			}

			output, err := renderDocument(export, res.Graph, format)
			if err != nil {
				return err
			}
			return writeOutput(output, outPath)
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "provider rule pack (default from input or config)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "external provider rule pack file (overrides --provider)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on unresolved references")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "resolver iteration cap (overrides config)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, dot, mermaid")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&save, "save", false, "archive the run to the database")
	cmd.Flags().Int64Var(&fromRun, "from-run", 0, "re-transform an archived run's original graph")
	return cmd
}

// documentFromRun rebuilds an engine input from an archived run,
// preferring the pre-transformation graph when the run carries one.
func documentFromRun(cmd *cobra.Command, archive *graph.Archive, id int64) (*ingest.Document, string, error) {
	exported, run, err := archive.GetRun(cmd.Context(), id)
	if err != nil {
		return nil, "", err
	}
	if exported == nil {
		return nil, "", fmt.Errorf("run %d not found", id)
	}

	doc := &ingest.Document{
		Graph:    exported.Graph,
		Meta:     exported.Meta,
		Provider: exported.Provider,
	}
	if exported.OriginalGraph != nil {
		doc.Graph = exported.OriginalGraph
		doc.Meta = exported.OriginalMeta
	}
	if err := doc.Validate(fmt.Sprintf("run %d", id)); err != nil {
		return nil, "", err
	}
	return doc, fmt.Sprintf("run:%d (%s)", run.ID, run.Source), nil
}

func renderDocument(doc *graph.Document, g *graph.Graph, format string) (string, error) {
	switch format {
	case "json":
		return graph.ExportJSON(doc)
	case "dot":
		return graph.ExportDOT(g), nil
	case "mermaid":
		return graph.ExportMermaid(g), nil
	default:
		return "", fmt.Errorf("unsupported format %q (use: json, dot, mermaid)", format)
	}
}

func writeOutput(output, outPath string) error {
	if outPath == "" {
		fmt.Print(output)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(output), 0o600); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// --- runs ---

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage archived transformation runs",
	}
	cmd.AddCommand(runsListCmd(), runsShowCmd(), runsExportCmd(), runsDeleteCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			archive := openArchive(loadConfig())
			defer archive.Close() //nolint:errcheck // best-effort cleanup

			runs, err := archive.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No archived runs. Use 'terramap transform --save' to archive one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tPROVIDER\tSOURCE\tCREATED\tNODES\tEDGES")
			for _, r := range runs {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.Provider, r.Source, r.CreatedAt.Format("2006-01-02 15:04"), r.NodeCount, r.EdgeCount)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs to list")
	return cmd
}

func runParam(cmd *cobra.Command, archive *graph.Archive, arg string) (*graph.Document, *graph.Run, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid run id %q", arg)
	}
	doc, run, err := archive.GetRun(cmd.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("run %d not found", id)
	}
	return doc, run, nil
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run's summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive := openArchive(loadConfig())
			defer archive.Close() //nolint:errcheck // best-effort cleanup

			doc, run, err := runParam(cmd, archive, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Run %d\n", run.ID)
			fmt.Printf("  Provider: %s\n", run.Provider)
			fmt.Printf("  Source:   %s\n", run.Source)
			fmt.Printf("  Created:  %s\n", run.CreatedAt.Format(time.RFC3339))
			fmt.Printf("  Nodes:    %d\n", run.NodeCount)
			fmt.Printf("  Edges:    %d\n", run.EdgeCount)
			if len(doc.Warnings) > 0 {
				fmt.Printf("\nWarnings:\n")
				for _, w := range doc.Warnings {
					fmt.Printf("  [%s] %s: %s\n", w.Kind, w.Node, w.Detail)
				}
			}
			return nil
		},
	}
}

func runsExportCmd() *cobra.Command {
	var format, outPath string

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Re-export an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive := openArchive(loadConfig())
			defer archive.Close() //nolint:errcheck // best-effort cleanup

			doc, _, err := runParam(cmd, archive, args[0])
			if err != nil {
				return err
			}

			output, err := renderDocument(doc, graph.FromRaw(doc.Graph, doc.Meta), format)
			if err != nil {
				return err
			}
			return writeOutput(output, outPath)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export format: json, dot, mermaid")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default: stdout)")
	return cmd
}

func runsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive := openArchive(loadConfig())
			defer archive.Close() //nolint:errcheck // best-effort cleanup

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			if err := archive.DeleteRun(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Deleted run %d.\n", id)
			return nil
		},
	}
}

// --- providers ---

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List built-in provider rule packs",
		RunE: func(_ *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tHANDLERS\tIMPLIED RULES\tCONSOLIDATIONS")
			for _, name := range provider.Builtin() {
				pc, err := provider.Load(name)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n",
					name, len(pc.Handlers), len(pc.Implied), len(pc.Consolidations))
			}
			return w.Flush()
		},
	}
}

// --- sync ---

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <run-id>",
		Short: "Mirror an archived run into Memgraph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if !cfg.Storage.Memgraph.Enabled {
				return fmt.Errorf("memgraph is not enabled in configuration (set storage.memgraph.enabled: true)")
			}

			archive := openArchive(cfg)
			defer archive.Close() //nolint:errcheck // best-effort cleanup

			doc, _, err := runParam(cmd, archive, args[0])
			if err != nil {
				return err
			}

			auth := neo4j.NoAuth()
			if cfg.Storage.Memgraph.Username != "" {
				auth = neo4j.BasicAuth(cfg.Storage.Memgraph.Username, cfg.Storage.Memgraph.Password, "")
			}

			driver, err := neo4j.NewDriverWithContext(cfg.Storage.Memgraph.URI, auth)
			if err != nil {
				return fmt.Errorf("connecting to memgraph: %w", err)
			}
			defer driver.Close(context.Background()) //nolint:errcheck // best-effort cleanup

			var limiter *rate.Limiter
			if cfg.Storage.Memgraph.SyncRate > 0 {
				limiter = rate.NewLimiter(rate.Limit(cfg.Storage.Memgraph.SyncRate), 1)
			}

			return graph.SyncToMemgraph(cmd.Context(), doc, driver, limiter, logger)
		},
	}
}

// --- serve ---

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the archive API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			archive := openArchive(cfg)

			if listen == "" {
				listen = cfg.Server.Listen
			}

			srv := server.New(archive, logger, listen)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				_ = archive.Close()
			}()

			return srv.Start()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config or :8080)")
	return cmd
}

// --- version ---

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("terramap %s\n", version)
		},
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid --log-level %q (use: debug, info, warn, error)", s)
	}
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for terramap.

To load completions:

Bash:
  $ source <(terramap completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ terramap completion bash > /etc/bash_completion.d/terramap
  # macOS:
  $ terramap completion bash > $(brew --prefix)/etc/bash_completion.d/terramap

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  # To load completions for each session, execute once:
  $ terramap completion zsh > "${fpath[1]}/_terramap"
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ terramap completion fish | source
  # To load completions for each session, execute once:
  $ terramap completion fish > ~/.config/fish/completions/terramap.fish

PowerShell:
  PS> terramap completion powershell | Out-String | Invoke-Expression
  # To load completions for every new session, add the output to your profile:
  PS> terramap completion powershell >> $PROFILE
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
