package main

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mpataki/awinspect/internal/discovery"
	"github.com/mpataki/awinspect/internal/lua"
	"github.com/mpataki/awinspect/internal/models"
	"github.com/mpataki/awinspect/internal/prompt"
)

const wrapWidth = 80

func findWorkflow(e *env, arg string) (models.Workflow, error) {
	return discovery.Find(e.cfg.WorkflowsDir, arg)
}

func newListCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			workflows, err := discovery.Discover(e.cfg.WorkflowsDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(workflows) == 0 {
				fmt.Fprintf(out, "No workflows found in %s.\n", e.cfg.WorkflowsDir)
				return nil
			}

			for _, wf := range workflows {
				fmt.Fprintf(out, "%-24s %s\n", wf.Name, wf.Path)
			}
			return nil
		},
	}
}

func newInspectCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <workflow>",
		Short: "Show a workflow's frontmatter and imports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			wf, err := findWorkflow(e, args[0])
			if err != nil {
				return err
			}

			insp, err := e.eval.Inspect(wf)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s\n\n", wf.Name, wf.Path)

			fmt.Fprintln(out, "Frontmatter:")
			switch {
			case insp.ParseErr != nil:
				fmt.Fprintf(out, "  %v\n", insp.ParseErr)
			case len(insp.Fields) == 0:
				fmt.Fprintln(out, "  (none)")
			default:
				for _, field := range insp.Fields {
					labels := make([]string, 0, len(field.Items))
					for _, item := range field.Items {
						labels = append(labels, item.Label)
					}
					fmt.Fprintf(out, "  %s: %s\n", field.Key, strings.Join(labels, ", "))

					for _, item := range field.Items {
						if item.Detail == "" || item.Detail == item.Label {
							continue
						}
						detail := wordwrap.String(item.Detail, wrapWidth-6)
						fmt.Fprintln(out, indent.String(detail, 6))
					}
				}
			}

			fmt.Fprintln(out, "\nFiles (dependencies first):")
			for _, f := range insp.Files {
				fmt.Fprintf(out, "  %s\n", insp.RelativePath(f.Path))
			}

			return nil
		},
	}
}

func newContextCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <workflow>",
		Short: "Print the prompt that would be sent to the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blockOnly, _ := cmd.Flags().GetBool("block")
			input, _ := cmd.Flags().GetString("input")

			e, _, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			wf, err := findWorkflow(e, args[0])
			if err != nil {
				return err
			}

			kind := prompt.KindEvaluation
			if input != "" {
				kind = prompt.KindSimulation
			}

			prepared, err := e.eval.Prepare(wf, kind, input)
			if err != nil {
				return err
			}

			if blockOnly {
				fmt.Fprint(cmd.OutOrStdout(), prepared.Block)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), prepared.Prompt)
			return nil
		},
	}

	cmd.Flags().Bool("block", false, "print only the assembled files, without the template")
	cmd.Flags().String("input", "", "render the simulation prompt for this input")
	return cmd
}

func newCheckCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check <workflow>",
		Short: "Run check scripts against a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.Close()

			wf, err := findWorkflow(e, args[0])
			if err != nil {
				return err
			}

			findings, err := e.eval.Check(ctx, wf)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(findings) == 0 {
				fmt.Fprintf(out, "%s: no findings\n", wf.Name)
				return nil
			}

			failed := 0
			for _, f := range findings {
				if f.Level == lua.LevelFail {
					failed++
				}
				fmt.Fprintf(out, "[%s] %s: %s\n", f.Level, f.Script, f.Message)
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}
