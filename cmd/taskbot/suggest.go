package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/germanamz/taskbot/pkg/batch"
	"github.com/germanamz/taskbot/pkg/extract"
)

func newSuggestCommand(ctx *commandContext) *cobra.Command {
	var (
		input  string
		task   string
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "suggest-template",
		Short: "Ask the model to draft a batch prompt template for a CSV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if task == "" {
				task = cfg.Batch.Task
			}
			if task == "" {
				return errors.New("suggest-template: --task is required")
			}
			tbl, err := readTable(ctx, input)
			if err != nil {
				return err
			}
			fieldSet := batchFields(fields, cfg.Batch)
			if err := extract.ValidateFields(fieldSet, tbl.Headers); err != nil {
				return err
			}

			comp, _, err := ctx.completer()
			if err != nil {
				return err
			}

			opts := batch.DefaultOptions()
			opts.Temperature = cfg.Generation.Suggest.Temperature
			opts.MaxTokens = cfg.Generation.Suggest.MaxTokens
			opts.Logger = ctx.logger

			s, err := batch.NewProcessor(comp, opts).SuggestTemplate(cmd.Context(), tbl, task, fieldSet)
			if err != nil {
				return err
			}

			if s.Fallback {
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("template suggestion failed, using the default template: "+s.Reason.Error()))
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Template)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "CSV file whose columns the template may use")
	cmd.Flags().StringVarP(&task, "task", "t", "", "task description")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, `output field as "key" or "key=description" (repeatable)`)
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
