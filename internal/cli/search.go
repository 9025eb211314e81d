package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"cvmatcher/internal/common"
	"cvmatcher/internal/types"
)

var (
	searchLimit     int
	searchCmdConfig common.CommandConfig
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Find candidates semantically similar to a query",
	Example: `  cvmatcher search senior go developer with kubernetes
  cvmatcher search --limit 3 --format markdown "data engineer"`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return resolveOutputFormat(cmd, &searchCmdConfig)
	},
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

		return common.RunCommand(cmd.Context(), logger, searchCmdConfig,
			types.SearchRequest{Query: strings.Join(args, " "), Limit: searchLimit},
			func(ctx context.Context, req types.SearchRequest) (*types.SearchResponse, error) {
				return a.Ingest.Search(ctx, req.Query, req.Limit)
			},
			func(req types.SearchRequest, c common.CommandConfig) {
				logger.Info("Searching candidates", "query", req.Query, "limit", req.Limit)
			})
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum results (default from config)")
	addOutputFlags(searchCmd, &searchCmdConfig)
}
