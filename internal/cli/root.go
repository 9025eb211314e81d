package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cvmatcher/internal/app"
	"cvmatcher/internal/common"
	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
)

type configKeyType struct{}
type loggerKeyType struct{}

var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "cvmatcher",
	Short: "Résumé ingestion and semantic candidate search",
	Long: `cvmatcher extracts text from uploaded résumés (PDF, DOCX, TXT), derives
candidate fields, embeds the text and stores it in a vector database so
candidates can be found by meaning rather than keywords.

Run "cvmatcher serve" for the HTTP API, or use the ingest, search and
candidates commands directly.`,
	SilenceUsage: true,
}

// Execute runs the root command with cfg and logger available to every subcommand
func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("config not found in context")
}

func getLoggerFromContext(ctx context.Context) (*errors.Logger, error) {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger, nil
	}
	return nil, fmt.Errorf("logger not found in context")
}

// openApp connects to every dependency for a single command run
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, Version, logger)
}

// addOutputFlags registers -o and --format and fills the default format
// before the command runs
func addOutputFlags(cmd *cobra.Command, target *common.CommandConfig) {
	cmd.Flags().StringVarP(&target.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&target.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return []string{}, cobra.ShellCompDirectiveError
		}
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

func resolveOutputFormat(cmd *cobra.Command, target *common.CommandConfig) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	if target.OutputFormat == "" {
		target.OutputFormat = cfg.App.DefaultFormat
	}
	if err := common.ValidateOutputFormat(target.OutputFormat, cfg.App.SupportedFormats); err != nil {
		return err
	}
	return common.NewFileProcessor(nil, nil).ValidateOutputFile(target.OutputFile)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(versionCmd)
}
