package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mpataki/awinspect/internal/models"
)

func newModelsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")

			e, ctx, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			list, err := e.eval.Models().Get(ctx, refresh)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range list {
				fmt.Fprintf(out, "%-28s %s\n", m.ID, m.Name)
			}
			return nil
		},
	}

	cmd.Flags().Bool("refresh", false, "ask the provider again instead of using cached models")
	return cmd
}

func newEvaluateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <workflow>",
		Short: "Ask a model to review a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelID, _ := cmd.Flags().GetString("model")
			return runModel(cmd, v, args[0], models.RunKindEvaluation, modelID, "")
		},
	}

	cmd.Flags().StringP("model", "m", "sonnet", "model id")
	return cmd
}

func newSimulateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <workflow> [input]",
		Short: "Ask a model how a workflow would respond to an input",
		Long:  "Ask a model how a workflow would respond to an input. Without an input\nargument the input is read from stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelID, _ := cmd.Flags().GetString("model")

			var input string
			if len(args) == 2 {
				input = args[1]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				input = string(data)
			}

			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("simulation input is empty")
			}
			return runModel(cmd, v, args[0], models.RunKindSimulation, modelID, input)
		},
	}

	cmd.Flags().StringP("model", "m", "sonnet", "model id")
	return cmd
}

// runModel streams an evaluation or simulation to stdout. Ctrl-C cancels
// the model call and keeps the partial report.
func runModel(cmd *cobra.Command, v *viper.Viper, arg string, kind models.RunKind, modelID, input string) error {
	e, ctx, err := openEnv(cmd, v)
	if err != nil {
		return err
	}
	defer e.Close()

	wf, err := findWorkflow(e, arg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A fresh process has an empty model cache.
	if _, err := e.eval.Models().Get(ctx, false); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sink := func(delta string) {
		fmt.Fprint(out, delta)
	}

	var run *models.Run
	if kind == models.RunKindSimulation {
		run, err = e.eval.Simulate(ctx, wf, modelID, input, sink)
	} else {
		run, err = e.eval.Evaluate(ctx, wf, modelID, sink)
	}
	if run != nil {
		fmt.Fprintln(out)
		printRunFooter(cmd.ErrOrStderr(), run)
	}
	return err
}

func printRunFooter(w io.Writer, run *models.Run) {
	fmt.Fprintf(w, "\nRun #%d %s", run.ID, run.Status)
	if run.Status == models.RunStatusCancelled {
		fmt.Fprint(w, " (partial report kept)")
	}
	fmt.Fprintf(w, "\nReport: %s\n", run.ReportPath)
	if run.SessionID != "" {
		fmt.Fprintf(w, "Continue with: awinspect resume %d\n", run.ID)
	}
}
