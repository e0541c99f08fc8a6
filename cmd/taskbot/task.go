package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/germanamz/taskbot/pkg/taskbot"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	var (
		task     string
		fields   []string
		jsonFlag bool
	)

	cmd := &cobra.Command{
		Use:   "task",
		Short: "Run one structured task and print the extracted fields",
		Example: `  taskbot task -t "Classify the sentiment of: I love it" -f sentiment="positive, negative or neutral"
  taskbot task -t "Suggest a name for a bakery" -f name -f tagline --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if task == "" {
				return errors.New("task: --task is required")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			comp, _, err := ctx.completer()
			if err != nil {
				return err
			}

			opts := taskbot.DefaultOptions()
			opts.Temperature = cfg.Generation.Task.Temperature
			opts.MaxTokens = cfg.Generation.Task.MaxTokens
			opts.MaxAttempts = cfg.Retry.TaskAttempts
			opts.Logger = ctx.logger
			opts.Observer = ctx.recorder

			fieldSet := parseFields(fields)
			start := time.Now()

			res, rep, err := taskbot.New(comp, opts).Run(cmd.Context(), task, fieldSet)
			if err != nil {
				return err
			}

			if jsonFlag {
				return writeJSON(cmd, map[string]any{
					"result":   res,
					"attempts": rep.Attempts,
				})
			}

			rows := make([][]string, len(fieldSet))
			for i, f := range fieldSet {
				rows[i] = []string{f.Key, res[f.Key]}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

			status := fmt.Sprintf("attempts: %d · %s", rep.Attempts, fmtDuration(time.Since(start)))
			if u := usageLine(comp); u != "" {
				status += " · " + u
			}
			fmt.Fprintln(out, dimStyle.Render(status))

			return nil
		},
	}

	cmd.Flags().StringVarP(&task, "task", "t", "", "task description")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, `output field as "key" or "key=description" (repeatable)`)
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("field")

	return cmd
}
