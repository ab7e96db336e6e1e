package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookdepot/coverdl/internal/fetch"
	"github.com/bookdepot/coverdl/internal/format"
	"github.com/bookdepot/coverdl/internal/ident"
	"github.com/bookdepot/coverdl/internal/imaging"
	"github.com/bookdepot/coverdl/internal/pipeline"
	"github.com/bookdepot/coverdl/internal/report"
	"github.com/bookdepot/coverdl/internal/table"
)

type runFlags struct {
	input            string
	output           string
	identifierColumn string
	linkColumn       string
	convertWebP      bool
	transparency     bool
	overwrite        bool
	delay            time.Duration
	timeout          time.Duration
	retries          int
	retryDelay       time.Duration
	onlyFile         string
	defaultExt       string
	quiet            bool
}

func newRunCommand() *cobra.Command {
	flags := runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a spreadsheet and write the downloaded covers as a zip archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "Spreadsheet with identifiers and image links (.xlsx or .csv)")
	cmd.Flags().StringVarP(&flags.output, "out", "o", "covers.zip", "Output zip archive path")
	cmd.Flags().StringVar(&flags.identifierColumn, "id-column", "EAN", "Column holding the identifiers")
	cmd.Flags().StringVar(&flags.linkColumn, "link-column", "Link", "Column holding the image links")
	cmd.Flags().BoolVar(&flags.convertWebP, "convert-webp", true, "Convert WebP images to PNG")
	cmd.Flags().BoolVar(&flags.transparency, "transparency", true, "Flatten transparent images onto a white background")
	cmd.Flags().BoolVar(&flags.overwrite, "overwrite", false, "Overwrite duplicate filenames in the archive")
	cmd.Flags().DurationVar(&flags.delay, "delay", 1500*time.Millisecond, "Pause between downloads")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	cmd.Flags().IntVar(&flags.retries, "retries", 2, "Retries per download after the first attempt")
	cmd.Flags().DurationVar(&flags.retryDelay, "retry-delay", 2*time.Second, "Pause between retries")
	cmd.Flags().StringVar(&flags.onlyFile, "only", "", "File with identifiers to restrict the run to, one per line")
	cmd.Flags().StringVar(&flags.defaultExt, "default-ext", format.DefaultExtension, "Extension used when a link has none")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress per-row progress output")

	cobra.CheckErr(cmd.MarkFlagRequired("input"))

	return cmd
}

func runDownload(cmd *cobra.Command, flags runFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tbl, err := table.Open(flags.input)
	if err != nil {
		return err
	}

	rows, err := tbl.Pairs(flags.identifierColumn, flags.linkColumn)
	if err != nil {
		return err
	}

	var allowlist map[string]struct{}
	if flags.onlyFile != "" {
		raw, err := os.ReadFile(flags.onlyFile)
		if err != nil {
			return fmt.Errorf("read allowlist %s: %w", flags.onlyFile, err)
		}
		allowlist = ident.ParseList(string(raw))
	}

	if err := imaging.Startup(); err != nil {
		return fmt.Errorf("start image runtime: %w", err)
	}
	defer imaging.Shutdown()

	normalizer, err := imaging.New()
	if err != nil {
		return fmt.Errorf("create normalizer: %w", err)
	}

	client := fetch.NewClient(fetch.Config{
		Timeout:    flags.timeout,
		MaxRetries: flags.retries,
		RetryDelay: flags.retryDelay,
	})

	runner := pipeline.NewRunner(client, normalizer, pipeline.Options{
		ConvertWebP:        flags.convertWebP,
		HandleTransparency: flags.transparency,
		Overwrite:          flags.overwrite,
		Delay:              flags.delay,
		AllowedExtensions:  format.AllowedExtensions(),
		DefaultExtension:   flags.defaultExt,
		Allowlist:          allowlist,
	})

	if !flags.quiet {
		runner.OnRow = func(row pipeline.RowResult) {
			switch row.Outcome {
			case pipeline.OutcomeAdded:
				fmt.Fprintf(cmd.ErrOrStderr(), "added %s\n", row.Filename)
			case pipeline.OutcomeFetchFailed, pipeline.OutcomeNormalizeFailed:
				fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %v\n", row.Identifier, row.Err)
			}
		}
	}

	result, err := runner.Run(ctx, rows)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), report.Render(result.Stats, result.Errors, result.Missing))

	if result.Bundle.Len() == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No covers downloaded, archive not written.")
		return nil
	}

	archive, err := result.Bundle.Finalize()
	if err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := os.WriteFile(flags.output, archive, 0o644); err != nil {
		return fmt.Errorf("write archive %s: %w", flags.output, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d covers to %s (%d bytes).\n", result.Bundle.Len(), flags.output, len(archive))
	return nil
}
