package cli

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"cvmatcher/internal/common"
	"cvmatcher/internal/types"
)

var (
	candidatesLimit     int
	candidatesAssumeYes bool
	candidatesCmdConfig common.CommandConfig
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List and delete stored candidates",
}

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored candidates, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := getLoggerFromContext(cmd.Context())
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		return common.RunCommand(cmd.Context(), logger, candidatesCmdConfig, candidatesLimit,
			func(ctx context.Context, limit int) (*types.CandidateListResponse, error) {
				return a.Ingest.List(ctx, limit)
			}, nil)
	},
}

var candidatesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one candidate by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := getLoggerFromContext(cmd.Context())
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		return common.RunCommand(cmd.Context(), logger, candidatesCmdConfig, args[0],
			a.Ingest.Delete,
			func(id string, _ common.CommandConfig) {
				logger.Info("Deleting candidate", "id", id)
			})
	},
}

var candidatesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored candidate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := getLoggerFromContext(cmd.Context())
		if err != nil {
			return err
		}

		if !candidatesAssumeYes {
			confirmed, err := confirm("Delete ALL candidates? This cannot be undone")
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted")
				return nil
			}
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		return common.RunCommand(cmd.Context(), logger, candidatesCmdConfig, struct{}{},
			func(ctx context.Context, _ struct{}) (*types.DeleteResponse, error) {
				return a.Ingest.Clear(ctx)
			}, nil)
	},
}

func confirm(label string) (bool, error) {
	prompt := promptui.Select{
		Label: label,
		Items: []string{"No", "Yes"},
	}
	_, selected, err := prompt.Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return selected == "Yes", nil
}

func init() {
	candidatesCmd.PersistentFlags().StringVarP(&candidatesCmdConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	candidatesCmd.PersistentFlags().StringVar(&candidatesCmdConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	candidatesCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return resolveOutputFormat(cmd, &candidatesCmdConfig)
	}

	candidatesListCmd.Flags().IntVarP(&candidatesLimit, "limit", "n", 0, "Maximum candidates (default from config)")
	candidatesClearCmd.Flags().BoolVarP(&candidatesAssumeYes, "yes", "y", false, "Skip the confirmation prompt")

	candidatesCmd.AddCommand(candidatesListCmd, candidatesDeleteCmd, candidatesClearCmd)
}
