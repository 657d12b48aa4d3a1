package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mpataki/awinspect/internal/config"
	"github.com/mpataki/awinspect/internal/evaluator"
	"github.com/mpataki/awinspect/internal/llm"
	"github.com/mpataki/awinspect/internal/logging"
	"github.com/mpataki/awinspect/internal/storage"
	"github.com/mpataki/awinspect/internal/tui"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "awinspect",
		Short: "Inspect and evaluate GitHub agentic workflows",
		Long: "awinspect shows what an agentic workflow is configured to do, assembles it with\n" +
			"its imports, and asks a model to review it or simulate how it would respond.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("workflows-dir", "", "workflow directory (default .github/workflows)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	v.BindPFlag("workflows_dir", flags.Lookup("workflows-dir"))
	v.BindPFlag("log_level", flags.Lookup("log-level"))
	v.BindPFlag("log_format", flags.Lookup("log-format"))

	rootCmd.AddCommand(newListCommand(v))
	rootCmd.AddCommand(newInspectCommand(v))
	rootCmd.AddCommand(newContextCommand(v))
	rootCmd.AddCommand(newCheckCommand(v))
	rootCmd.AddCommand(newModelsCommand(v))
	rootCmd.AddCommand(newEvaluateCommand(v))
	rootCmd.AddCommand(newSimulateCommand(v))
	rootCmd.AddCommand(newRunsCommand(v))
	rootCmd.AddCommand(newShowCommand(v))
	rootCmd.AddCommand(newResumeCommand(v))
	rootCmd.AddCommand(newKillCommand(v))
	rootCmd.AddCommand(newDeleteCommand(v))

	return rootCmd
}

// env is what every command needs: config, run store, evaluator and a
// logger writing to the data directory.
type env struct {
	cfg     *config.Config
	store   *storage.Storage
	eval    *evaluator.Evaluator
	logger  *slog.Logger
	logFile *os.File
}

func openEnv(cmd *cobra.Command, v *viper.Viper) (*env, context.Context, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logFile, err := os.OpenFile(cfg.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, logFile).With("command", cmd.Name())

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	provider := llm.NewClaudeProvider(cfg.ClaudePath, cfg.Models,
		llm.WithWorkDir(wd),
		llm.WithLogger(logger),
	)

	opts := []evaluator.Option{
		evaluator.WithPromptsDir(cfg.PromptsDir),
		evaluator.WithCheckDirs(cfg.CheckDirs()...),
		evaluator.WithClaudePath(cfg.ClaudePath),
		evaluator.WithLogger(logger),
	}
	if cfg.Notify {
		opts = append(opts, evaluator.WithNotifier(nil))
	}
	eval := evaluator.New(store, cfg.ReportsDir(), provider, llm.NewModelCache(provider), opts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, logger)

	return &env{cfg: cfg, store: store, eval: eval, logger: logger, logFile: logFile}, ctx, nil
}

func (e *env) Close() {
	e.store.Close()
	e.logFile.Close()
}

func runTUI(cmd *cobra.Command, v *viper.Viper) error {
	e, ctx, err := openEnv(cmd, v)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.logger.Info("starting tui", "workflows_dir", e.cfg.WorkflowsDir)

	app := tui.NewApp(ctx, e.eval, e.cfg.WorkflowsDir, e.cfg.MaxRuns)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err = p.Run()
	return err
}

func parseRunID(arg string) (int64, error) {
	runID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run ID: %w", err)
	}
	return runID, nil
}
