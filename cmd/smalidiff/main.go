package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smalidiff/internal/config"
	"smalidiff/internal/diff"
	"smalidiff/internal/git"
	"smalidiff/internal/logging"
	"smalidiff/internal/project"
	"smalidiff/internal/report"
	"smalidiff/internal/storage"
)

var (
	rootCmd = &cobra.Command{
		Use:           "smalidiff",
		Short:         "Structural diff of two disassembled Android packages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath string
	logLevel   string
	dbPath     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the results database (SQLite)")

	diffCmd.Flags().Bool("force", false, "Diff even when a project looks obfuscated")
	diffCmd.Flags().Bool("patch", false, "Print unified patches of revised method bodies")
	diffCmd.Flags().Bool("save", false, "Store the result in the database")
	diffCmd.Flags().Bool("only-changed", false, "Hide matched classes without changes")
	diffCmd.Flags().Bool("color", !color.NoColor, "Colorize the report")
	diffCmd.Flags().Bool("strict", false, "Abort on the first file that fails to parse")
	diffCmd.Flags().String("git-repo", "", "Treat <old> and <new> as revisions of this git repository")
	diffCmd.Flags().String("git-dir", "", "Directory of the disassembly inside the git repository")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(obfuscationCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(runsCmd)
}

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func setup(cmd *cobra.Command) (*env, error) {
	load := config.LoadConfigOrDefault
	if cmd.Flags().Changed("config") {
		load = config.LoadConfig
	}
	cfg, err := load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) loader(strict bool) (*project.Loader, error) {
	filter, err := e.cfg.ProjectFilter()
	if err != nil {
		return nil, fmt.Errorf("failed to load filter rules: %w", err)
	}
	loader := project.NewLoader(filter, e.logger)
	loader.Strict = strict
	loader.Workers = e.cfg.Diff.Workers
	return loader, nil
}

func (e *env) loadProject(ctx context.Context, path string, strict bool) (*project.Project, error) {
	loader, err := e.loader(strict)
	if err != nil {
		return nil, err
	}
	p, err := loader.LoadPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return p, nil
}

// loadRevision loads the disassembly under dir in repo at rev.
func (e *env) loadRevision(ctx context.Context, repo, dir, rev string, strict bool) (*project.Project, error) {
	loader, err := e.loader(strict)
	if err != nil {
		return nil, err
	}
	entries, err := git.Snapshot(ctx, repo, rev, dir)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("read revision", zap.String("rev", rev), zap.Int("files", len(entries)))
	p, err := loader.Load(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", rev, err)
	}
	return p, nil
}

var parseCmd = &cobra.Command{
	Use:   "parse <input>",
	Short: "Load a project and print its statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		p, err := e.loadProject(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}

		st := p.Stats()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "classes:       %d\n", st.Classes)
		fmt.Fprintf(out, "inner classes: %d (%d placeholders)\n", st.InnerClasses, st.Placeholders)
		fmt.Fprintf(out, "methods:       %d\n", st.Methods)
		fmt.Fprintf(out, "fields:        %d\n", st.Fields)
		fmt.Fprintf(out, "resource ids:  %d\n", st.ResourceIDs)
		fmt.Fprintf(out, "parse errors:  %d\n", st.ParseErrors)
		fmt.Fprintf(out, "obfuscated:    %t\n", p.IsObfuscated())
		for _, pe := range p.ParseErrors {
			fmt.Fprintf(out, "  %v\n", pe)
		}
		return nil
	},
}

var obfuscationCmd = &cobra.Command{
	Use:   "obfuscation <input>",
	Short: "Report whether a project looks obfuscated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		p, err := e.loadProject(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		short, regular := p.ObfuscationCounts()
		fmt.Fprintf(cmd.OutOrStdout(), "%t (short names: %d, regular names: %d)\n", p.IsObfuscated(), short, regular)
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Compare two versions of a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		patch, _ := cmd.Flags().GetBool("patch")
		save, _ := cmd.Flags().GetBool("save")
		onlyChanged, _ := cmd.Flags().GetBool("only-changed")
		strict, _ := cmd.Flags().GetBool("strict")
		colored, _ := cmd.Flags().GetBool("color")
		gitRepo, _ := cmd.Flags().GetString("git-repo")
		gitDir, _ := cmd.Flags().GetString("git-dir")

		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		ctx := cmd.Context()
		load := func(arg string) (*project.Project, error) {
			if gitRepo != "" {
				return e.loadRevision(ctx, gitRepo, gitDir, arg, strict)
			}
			return e.loadProject(ctx, arg, strict)
		}
		oldProject, err := load(args[0])
		if err != nil {
			return err
		}
		newProject, err := load(args[1])
		if err != nil {
			return err
		}

		if !force {
			for i, p := range []*project.Project{oldProject, newProject} {
				if p.IsObfuscated() {
					return fmt.Errorf("%s: %w (use --force to diff anyway)", args[i], project.ErrObfuscated)
				}
			}
		}

		res, err := diff.NewDifferencer(e.cfg.DiffOptions(), e.logger).Diff(ctx, oldProject, newProject)
		if err != nil {
			return fmt.Errorf("diff failed: %w", err)
		}

		w := report.NewWriter(cmd.OutOrStdout(), report.Options{Patches: patch, OnlyChanged: onlyChanged, Color: colored})
		if err := w.Write(res); err != nil {
			return err
		}

		if !save {
			return nil
		}
		store, err := storage.NewSQLiteStore(e.cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		info := storage.RunInfo{OldSource: args[0], NewSource: args[1]}
		if gitRepo != "" {
			info.OldSource = gitRepo + "@" + args[0]
			info.NewSource = gitRepo + "@" + args[1]
		}
		id, err := store.SaveResult(ctx, info, res)
		if err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		e.logger.Info("result saved", zap.Int64("run", id), zap.String("db", e.cfg.Storage.DBPath))
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "List stored diff runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		if _, err := os.Stat(e.cfg.Storage.DBPath); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no database at %s", e.cfg.Storage.DBPath)
		}
		store, err := storage.NewSQLiteStore(e.cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			runs, err := store.ListRuns(ctx)
			if err != nil {
				return err
			}
			table := tablewriter.NewTable(out, tablewriter.WithRowAutoWrap(tw.WrapNone))
			table.Header("ID", "Created", "Old", "New", "Matched", "Changed", "Added", "Deleted")
			for _, r := range runs {
				if err := table.Append([]string{
					strconv.FormatInt(r.ID, 10),
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.OldSource,
					r.NewSource,
					strconv.Itoa(r.Matched),
					strconv.Itoa(r.Changed),
					strconv.Itoa(r.Added),
					strconv.Itoa(r.Deleted),
				}); err != nil {
					return fmt.Errorf("failed to render runs: %w", err)
				}
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("failed to render runs: %w", err)
			}
			return nil
		}

		var run *storage.Run
		if id, perr := strconv.ParseInt(args[0], 10, 64); perr == nil {
			run, err = store.LoadRun(ctx, id)
		} else {
			run, err = store.LoadRunByKey(ctx, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "run %d (%s): %s -> %s\n", run.Info.ID, run.Info.Key, run.Info.OldSource, run.Info.NewSource)
		for _, m := range run.Mappings {
			fmt.Fprintf(out, "  map %s -> %s\n", m[0], m[1])
		}
		for _, en := range run.Entries {
			fmt.Fprintf(out, "  [%s] %s %s\n", en.Status, en.OldClass, en.NewClass)
			for _, c := range en.Changes {
				fmt.Fprintf(out, "      %-26s %s\n", c.Kind, c.Subject)
			}
		}
		return nil
	},
}
