package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			if !cmd.Flags().Changed("limit") {
				limit = e.cfg.MaxRuns
			}

			runs, err := e.eval.ListRuns(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			for _, run := range runs {
				fmt.Fprintf(out, "#%-4d %-24s %-10s %-9s %-10s %s\n",
					run.ID, truncate(run.WorkflowName, 24), run.Kind, run.Status,
					run.ModelID, run.CreatedAt.Local().Format("2006-01-02 15:04"))
			}

			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 0, "number of runs to show (default max_runs)")
	return cmd
}

func newShowCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetBool("raw")

			e, _, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			run, err := e.eval.GetRun(runID)
			if err != nil {
				return err
			}

			report, err := e.eval.Report(runID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprint(out, report)
				return nil
			}

			fmt.Fprintf(out, "Run #%d: %s %s [%s] %s\n", run.ID, run.Kind, run.WorkflowName, run.Status, run.ModelID)
			if run.Input != "" {
				fmt.Fprintf(out, "Input: %s\n", run.Input)
			}
			if run.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", run.Error)
			}

			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrapWidth))
			if err != nil {
				return err
			}
			rendered, err := r.Render(report)
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
			return nil
		},
	}

	cmd.Flags().Bool("raw", false, "print the report markdown without rendering")
	return cmd
}

func newResumeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a run's model session interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			e, _, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			argv, err := e.eval.ResumeCommand(runID)
			if err != nil {
				return err
			}

			c := exec.Command(argv[0], argv[1:]...)
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			return c.Run()
		},
	}
}

func newKillCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <run-id>",
		Short: "Kill a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			e, _, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.eval.KillRun(runID); err != nil {
				return fmt.Errorf("failed to kill run: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Killed run #%d\n", runID)
			return nil
		},
	}
}

func newDeleteCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			e, _, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.eval.DeleteRun(runID); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run #%d\n", runID)
			return nil
		},
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
