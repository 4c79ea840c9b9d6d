package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/finder"
	"github.com/houseofcat/rabbitreader/metrics"
	"github.com/houseofcat/rabbitreader/models"
	"github.com/houseofcat/rabbitreader/reader"
)

const metricsNamespace = "rabbitreader"

type consumeOptions struct {
	maxRecords int
	stopOnIdle bool
	label      string
}

func newConsumeCommand(root *rootOptions) *cobra.Command {
	opts := &consumeOptions{}

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Print records from the queue as JSON lines",
		Long: `Connect to the broker, subscribe to the configured queue and print every
record as one JSON line on stdout. Each printed record is marked processed.

Examples:
  # Drain whatever is queued, then stop
  rabbitreader consume --config reader.yaml --stop-on-idle

  # Read ten records
  rabbitreader consume --config reader.yaml --max-records 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {

			app, log, err := root.loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runConsume(ctx, app.Reader, app.StatePath, app.MetricsAddress, opts, log, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.maxRecords, "max-records", 0, "stop after this many records (0 reads until interrupted)")
	cmd.Flags().BoolVar(&opts.stopOnIdle, "stop-on-idle", false, "stop at the first timeout with nothing queued")
	cmd.Flags().StringVar(&opts.label, "source", finder.DefaultLabel, "label recorded as the current source")

	return cmd
}

func runConsume(
	ctx context.Context,
	readerConfig *models.ReaderConfig,
	statePath string,
	metricsAddress string,
	opts *consumeOptions,
	log *zap.Logger,
	out io.Writer) error {

	store, err := openStore(statePath, log)
	if err != nil {
		return err
	}
	defer closeStore(store, log)

	readerMetrics := metrics.NewMetrics(metricsNamespace)
	if metricsAddress != "" {
		server := serveMetrics(metricsAddress, readerMetrics, log)
		defer shutdownMetrics(server, log)
	}

	r, err := reader.NewReader(readerConfig, newDialer(log), store, log, readerMetrics)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			log.Warn("failed to close reader", zap.Error(closeErr))
		}
	}()

	sources := finder.NewBrokerFinder(opts.label)
	source, found, err := sources.FindNextSource(ctx)
	if err != nil || !found {
		return err
	}

	if err := r.Connect(ctx, source); err != nil {
		return fmt.Errorf("can't read source %s: %w", source, err)
	}

	source, err = sources.ClaimSource(source)
	if err != nil {
		return err
	}

	if err := r.InitialiseWithSource(source); err != nil {
		return err
	}

	read, err := consumeRecords(ctx, r, opts, log, out)
	log.Info("finished consuming",
		zap.String("source", source),
		zap.Int("records", read),
		zap.Int64("session_count", r.SessionCount()))

	if err != nil {
		_ = r.MarkSourceFailed(source)
		_ = sources.MarkSourceFailed(source)
		return err
	}

	if err := r.MarkSourceProcessed(source); err != nil {
		return err
	}

	return sources.MarkSourceProcessed(source)
}

// consumeRecords prints records until the limit, an idle timeout or ctx stops it.
func consumeRecords(ctx context.Context, r *reader.Reader, opts *consumeOptions, log *zap.Logger, out io.Writer) (int, error) {

	var json = jsoniter.ConfigFastest
	read := 0

	for opts.maxRecords <= 0 || read < opts.maxRecords {

		record, err := r.GetNextRecord(ctx)
		switch {
		case err == nil:

		case errors.Is(err, models.ErrTimeout):
			if ctx.Err() != nil || opts.stopOnIdle {
				return read, nil
			}
			continue

		case errors.Is(err, models.ErrDecode):
			log.Warn("skipping message", zap.Error(err))
			continue

		default:
			return read, err
		}

		line, err := json.Marshal(record)
		if err == nil {
			line = append(line, '\n')
			_, err = out.Write(line)
		}

		if err != nil {
			log.Error("failed to print record", zap.Error(err))
			if markErr := r.MarkLastRecordFailed(); markErr != nil {
				return read, markErr
			}
			continue
		}

		if err := r.MarkLastRecordProcessed(); err != nil {
			return read, err
		}
		read++
	}

	return read, nil
}

func serveMetrics(address string, readerMetrics *metrics.Metrics, log *zap.Logger) *http.Server {

	mux := http.NewServeMux()
	mux.Handle("/metrics", readerMetrics.Handler())

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics listening", zap.String("address", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	return server
}

func shutdownMetrics(server *http.Server, log *zap.Logger) {

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("failed to stop metrics server", zap.Error(err))
	}
}
