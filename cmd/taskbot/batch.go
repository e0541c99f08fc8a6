package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/germanamz/taskbot/pkg/batch"
	"github.com/germanamz/taskbot/pkg/engine"
	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/prompts"
)

type batchFlags struct {
	input        string
	output       string
	task         string
	template     string
	templateFile string
	suggest      bool
	fields       []string
	textfile     string
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var flags batchFlags

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Apply a prompt template to every row of a CSV file",
		Long: "Apply a prompt template to every row of a CSV file and write the rows back\n" +
			"with one extra column per output field. Rows that keep failing get ERROR\n" +
			"in every output column; the batch carries on.\n\n" +
			"The template uses {column} placeholders. Without --template or\n" +
			"--template-file, --suggest asks the model to draft one; otherwise the task\n" +
			"followed by every column is used.\n\n" +
			"Task, template and fields not given on the command line are taken from\n" +
			"the batch section of the config file.",
		Example: `  taskbot batch --input reviews.csv --template "Rate this review: {review}" -f score="1 to 5"
  taskbot batch --input reviews.csv --task "Rate each review" --suggest -f score --output rated.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, ctx, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.input, "input", "i", "", "CSV file to process")
	f.StringVarP(&flags.output, "output", "o", "", `output CSV ("-" for stdout; default: <input>_processed.csv)`)
	f.StringVarP(&flags.task, "task", "t", "", "task description (used by --suggest and the default template)")
	f.StringVar(&flags.template, "template", "", "prompt template with {column} placeholders")
	f.StringVar(&flags.templateFile, "template-file", "", "read the prompt template from a file")
	f.BoolVar(&flags.suggest, "suggest", false, "ask the model to suggest a template")
	f.StringArrayVarP(&flags.fields, "field", "f", nil, `output field as "key" or "key=description" (repeatable; default: batch.fields)`)
	f.StringVar(&flags.textfile, "metrics-textfile", "", "write Prometheus metrics to this file when done")
	_ = cmd.MarkFlagRequired("input")
	cmd.MarkFlagsMutuallyExclusive("template", "template-file", "suggest")

	return cmd
}

func runBatch(cmd *cobra.Command, ctx *commandContext, flags batchFlags) (err error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	flags = flags.withDefaults(cfg.Batch)

	tbl, err := readTable(ctx, flags.input)
	if err != nil {
		return err
	}

	fields := batchFields(flags.fields, cfg.Batch)
	if err := extract.ValidateFields(fields, tbl.Headers); err != nil {
		return err
	}

	comp, _, err := ctx.completer()
	if err != nil {
		return err
	}

	if flags.textfile != "" {
		defer func() {
			if werr := ctx.recorder.WriteTextfile(flags.textfile); werr != nil && err == nil {
				err = werr
			}
		}()
	}

	stderr := cmd.ErrOrStderr()
	opts := batch.DefaultOptions()
	opts.Temperature = cfg.Generation.Batch.Temperature
	opts.MaxTokens = cfg.Generation.Batch.MaxTokens
	opts.MaxAttempts = cfg.Retry.TaskAttempts
	opts.Logger = ctx.logger
	opts.Observer = ctx.recorder
	opts.Rows = ctx.recorder
	opts.Progress = func(done, total int) {
		fmt.Fprintf(stderr, "%s\n", dimStyle.Render(fmt.Sprintf("processed %d/%d rows", done, total)))
	}
	proc := batch.NewProcessor(comp, opts)

	template, err := resolveTemplate(cmd, ctx, proc, tbl, fields, flags)
	if err != nil {
		return err
	}
	if missing := unknownPlaceholders(template, tbl.Headers); len(missing) > 0 {
		fmt.Fprintln(stderr, warnStyle.Render("template placeholders with no matching column: "+strings.Join(missing, ", ")))
	}

	start := time.Now()
	rep, runErr := proc.Run(cmd.Context(), tbl, template, fields)
	if rep == nil {
		return runErr
	}

	outPath, werr := writeOutput(cmd, rep.Output, fields, flags)
	if werr != nil {
		return werr
	}

	rows := [][]string{
		{"run", rep.RunID},
		{"rows", strconv.Itoa(rep.Total)},
		{"succeeded", strconv.Itoa(rep.Successes)},
		{"failed", strconv.Itoa(rep.Errors)},
		{"duration", fmtDuration(time.Since(start))},
	}
	if outPath != "-" {
		rows = append(rows, []string{"output", outPath})
	}
	if u := usageLine(comp); u != "" {
		rows = append(rows, []string{"usage", u})
	}
	fmt.Fprintln(stderr, renderTable([]string{"Batch", ""}, rows, nil))

	for _, f := range rep.Failures {
		fmt.Fprintln(stderr, warnStyle.Render(fmt.Sprintf("row %d: %s", f.Row, truncate(f.Err.Error(), 160))))
	}

	return runErr
}

// withDefaults fills the task and template the command line left out from the
// batch section of the config file.
func (f batchFlags) withDefaults(d engine.BatchDefaults) batchFlags {
	if f.task == "" {
		f.task = d.Task
	}
	if f.template == "" && f.templateFile == "" && !f.suggest {
		f.template = d.Template
	}
	return f
}

// batchFields returns the --field flags, or the configured fields when none
// were given.
func batchFields(specs []string, d engine.BatchDefaults) []extract.Field {
	if len(specs) > 0 {
		return parseFields(specs)
	}
	fields := make([]extract.Field, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = extract.Field{Key: strings.TrimSpace(f.Key), Description: strings.TrimSpace(f.Description)}
	}
	return fields
}

func readTable(ctx *commandContext, path string) (*batch.Table, error) {
	f, err := os.Open(path) //nolint:gosec // path is a user-supplied input file
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	defer func() { _ = f.Close() }()

	tbl, err := batch.ReadCSV(f, ctx.logger)
	if err != nil {
		return nil, err
	}
	if tbl.Len() == 0 {
		return nil, fmt.Errorf("batch: %s has no data rows", path)
	}
	return tbl, nil
}

func resolveTemplate(
	cmd *cobra.Command,
	ctx *commandContext,
	proc *batch.Processor,
	tbl *batch.Table,
	fields []extract.Field,
	flags batchFlags,
) (string, error) {
	switch {
	case flags.template != "":
		return flags.template, nil

	case flags.templateFile != "":
		data, err := os.ReadFile(flags.templateFile)
		if err != nil {
			return "", fmt.Errorf("batch: read template: %w", err)
		}
		return strings.TrimSpace(string(data)), nil

	case flags.suggest:
		if flags.task == "" {
			return "", errors.New("batch: --suggest needs --task")
		}
		s, err := proc.SuggestTemplate(cmd.Context(), tbl, flags.task, fields)
		if err != nil {
			return "", err
		}
		reportSuggestion(cmd.ErrOrStderr(), s)
		ctx.logger.Debug("batch: template resolved", "fallback", s.Fallback)
		return s.Template, nil
	}

	if flags.task == "" {
		return "", errors.New("batch: one of --template, --template-file or --task is required")
	}
	return prompts.DefaultBatchTemplate(flags.task, tbl.Headers), nil
}

func reportSuggestion(w io.Writer, s batch.Suggestion) {
	if s.Fallback {
		fmt.Fprintln(w, warnStyle.Render("template suggestion failed, using the default template: "+s.Reason.Error()))
	}
	fmt.Fprintln(w, titleStyle.Render("Template"))
	fmt.Fprintln(w, s.Template)
	fmt.Fprintln(w)
}

func unknownPlaceholders(template string, headers []string) []string {
	cols := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		cols[h] = struct{}{}
	}

	var out []string
	for _, p := range prompts.Placeholders(template) {
		if _, ok := cols[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func writeOutput(cmd *cobra.Command, tbl *batch.Table, fields []extract.Field, flags batchFlags) (string, error) {
	path := flags.output
	if path == "" {
		ext := filepath.Ext(flags.input)
		path = strings.TrimSuffix(flags.input, ext) + "_processed.csv"
	}

	if path == "-" {
		return path, tbl.WriteCSV(cmd.OutOrStdout(), fields)
	}

	f, err := os.Create(path) //nolint:gosec // path is a user-supplied output file
	if err != nil {
		return "", fmt.Errorf("batch: %w", err)
	}
	if err := tbl.WriteCSV(f, fields); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}
