package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cvmatcher/internal/common"
	"cvmatcher/internal/ingest"
	"cvmatcher/internal/types"
)

var (
	ingestJDFile    string
	ingestWatchDir  string
	ingestCmdConfig common.CommandConfig
)

type ingestInput struct {
	JobDescription ingest.Document
	Documents      []ingest.Document
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [resume files...]",
	Short: "Ingest résumé files into the candidate store",
	Long: `Extract text from résumé files (PDF, DOCX, TXT), derive candidate fields,
embed the text and store each candidate in the vector database.

A job description file is required for every batch. With --watch, files
dropped into the directory are ingested as they appear until interrupted.`,
	Example: `  cvmatcher ingest --jd job.txt alice.pdf bob.docx
  cvmatcher ingest --jd job.txt --format markdown -o report.md *.pdf
  cvmatcher ingest --jd job.txt --watch ./inbox`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && ingestWatchDir == "" {
			return fmt.Errorf("at least one résumé file or --watch directory is required")
		}
		return resolveOutputFormat(cmd, &ingestCmdConfig)
	},
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestJDFile, "jd", "", "Job description file (required)")
	ingestCmd.Flags().StringVarP(&ingestWatchDir, "watch", "w", "", "Watch a directory and ingest files dropped into it")
	addOutputFlags(ingestCmd, &ingestCmdConfig)

	_ = ingestCmd.MarkFlagRequired("jd")
	_ = ingestCmd.MarkFlagFilename("jd", "txt", "pdf", "docx")
	_ = ingestCmd.MarkFlagDirname("watch")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	fp := common.NewFileProcessor(cfg.App.AllowedExtensions, logger)
	jd, err := fp.ReadDocument(ingestJDFile)
	if err != nil {
		return err
	}
	documents, err := fp.ReadDocuments(args...)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(ctx)
	}()

	if len(documents) > 0 {
		err := common.RunCommand(cmd.Context(), logger, ingestCmdConfig,
			ingestInput{JobDescription: jd, Documents: documents},
			func(ctx context.Context, in ingestInput) (*types.BatchResult, error) {
				return a.Ingest.ProcessUpload(ctx, in.Documents, in.JobDescription)
			},
			func(in ingestInput, c common.CommandConfig) {
				logger.Info("Ingesting résumés",
					"job_description", ingestJDFile,
					"files", len(in.Documents),
					"format", c.OutputFormat)
			})
		if err != nil {
			return err
		}
	}

	if ingestWatchDir == "" {
		return nil
	}

	output := common.NewOutputHandler(logger)
	batchConfig := ingestCmdConfig
	batchConfig.AppendOutput = true
	watcher, err := ingest.NewDropWatcher(a.Ingest, ingestWatchDir, jd, cfg.Ingest.WatchDebounce,
		func(files []string, result *types.BatchResult, err error) {
			if err != nil {
				logger.LogError(err, "Batch from watched directory failed", "files", len(files))
				return
			}
			if err := output.HandleOutput(result, batchConfig); err != nil {
				logger.LogError(err, "Failed to write batch result")
			}
		})
	if err != nil {
		return err
	}

	logger.Info("Watching for résumés", "dir", ingestWatchDir, "extensions", a.Ingest.Extensions())
	return watcher.Run(cmd.Context())
}
