package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(newCommandContext())
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taskbot",
		Short:         "Structured LLM tasks, CSV batches and character chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "path to YAML configuration (default: taskbot.yaml if present)")
	flags.StringVar(&ctx.settingsFlag, "settings", "", "path to the provider settings file (overrides settings_file)")
	flags.StringVar(&ctx.envFlag, "env", ".env", "path to .env file (ignored if missing)")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(newConfigureCommand(ctx))
	rootCmd.AddCommand(newTaskCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newSuggestCommand(ctx))
	rootCmd.AddCommand(newChatCommand(ctx))

	return rootCmd
}
