package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"feedbackbot/internal/api"
	"feedbackbot/internal/distribute"
	"feedbackbot/internal/domain"
	"feedbackbot/internal/pipeline"
	"feedbackbot/internal/schedule"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	configPath string
	logLevel   string
}

// Main runs the CLI and exits non-zero on failure.
func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "feedbackbot",
		Short:         "Classify, score and report on customer feedback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				return os.Setenv("CONFIG_PATH", opts.configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (overrides CONFIG_PATH)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newServeCmd(opts), newIngestCmd(opts), newReportCmd(opts))
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the weekly report scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts.logLevel)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt, !noSchedule)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "do not start the report scheduler")
	return cmd
}

func serve(ctx context.Context, rt *runtime, withSchedule bool) error {
	handler := api.NewHandler(api.Deps{
		Store:         rt.store,
		Ingester:      rt.pipeline,
		Reports:       rt.job,
		LLMConfigured: rt.llmEnabled,
		Logger:        rt.logger.Named("http"),
	})
	srv := &http.Server{
		Addr:              rt.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	schedDone := make(chan struct{})
	if withSchedule {
		sched, err := schedule.New(rt.cfg.ReportCron, rt.cfg.Location, rt.job, rt.logger.Named("schedule"))
		if err != nil {
			return err
		}
		go func() {
			defer close(schedDone)
			sched.Run(ctx)
		}()
	} else {
		close(schedDone)
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		rt.logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Warn("http shutdown", zap.Error(err))
	}
	<-schedDone
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var text, source, csvPath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Store and analyze feedback from text or a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (text == "") == (csvPath == "") {
				return errors.New("exactly one of --text or --csv is required")
			}
			rt, err := newRuntime(opts.logLevel)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			if text != "" {
				rec, err := rt.pipeline.Ingest(cmd.Context(), text, source)
				if err != nil {
					return err
				}
				printRecord(out, rec)
				return nil
			}
			return ingestCSV(cmd.Context(), rt, csvPath, out)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "feedback text")
	cmd.Flags().StringVar(&source, "source", "manual", "feedback source label")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with a text or feedback column")
	return cmd
}

func ingestCSV(ctx context.Context, rt *runtime, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	items, err := pipeline.ReadCSV(f)
	if err != nil {
		return err
	}
	res, err := rt.pipeline.IngestAll(ctx, items)
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		printRecord(out, rec)
	}
	fmt.Fprintf(out, "Processed %d of %d feedback entries\n", len(res.Records), len(items))
	return res.Err()
}

func printRecord(out io.Writer, rec domain.Record) {
	line := fmt.Sprintf("#%d [%s] %s/%s", rec.ID, rec.Source, rec.Sentiment, rec.Theme)
	if rec.Score != nil {
		line += fmt.Sprintf(" urgency=%d impact=%d priority=%.1f", rec.Score.Urgency, rec.Score.Impact, rec.Score.PriorityScore)
	}
	fmt.Fprintln(out, line)
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate or show weekly priority reports",
	}

	var raw bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate, store and distribute a report now",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts.logLevel)
			if err != nil {
				return err
			}
			defer rt.Close()

			rep, sum, err := rt.job.Run(cmd.Context())
			if err != nil {
				return err
			}
			if err := printMarkdown(cmd.OutOrStdout(), rep.Content, raw); err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
	latest := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent stored report",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts.logLevel)
			if err != nil {
				return err
			}
			defer rt.Close()

			rep, ok, err := rt.store.LatestReport(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no reports found")
			}
			return printMarkdown(cmd.OutOrStdout(), rep.Content, raw)
		},
	}
	for _, c := range []*cobra.Command{generate, latest} {
		c.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal rendering")
	}
	cmd.AddCommand(generate, latest)
	return cmd
}

func printMarkdown(out io.Writer, content string, raw bool) error {
	if raw {
		_, err := fmt.Fprintln(out, content)
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func printSummary(out io.Writer, sum distribute.Summary) {
	if len(sum.Delivered) > 0 {
		fmt.Fprintf(out, "Delivered: %s\n", strings.Join(sum.Delivered, ", "))
	}
	if len(sum.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped (not configured): %s\n", strings.Join(sum.Skipped, ", "))
	}
	for _, f := range sum.Failed {
		fmt.Fprintf(out, "Failed: %s: %s\n", f.Channel, f.Error)
	}
}
