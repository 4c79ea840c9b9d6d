// Package cmd holds the rabbitreader command line.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/broker"
	"github.com/houseofcat/rabbitreader/config"
	"github.com/houseofcat/rabbitreader/logger"
	"github.com/houseofcat/rabbitreader/state"
)

// newDialer is replaced in tests.
var newDialer = func(log *zap.Logger) broker.Dialer { return broker.AMQPDialer{Logger: log} }

// rootOptions are the flags shared by every command.
type rootOptions struct {
	cfgFile  string
	logLevel string
}

// NewRootCommand builds the rabbitreader command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "rabbitreader",
		Short: "Read JSON records from a RabbitMQ queue",
		Long: `rabbitreader consumes a RabbitMQ queue and hands out one JSON record at a time.

Configuration comes from a config file (--config) and RABBITREADER_* environment
variables, e.g. RABBITREADER_HOST or RABBITREADER_PAYLOAD_PASSPHRASE.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error), overrides log.level")

	rootCmd.AddCommand(
		newVerifyCommand(opts),
		newConsumeCommand(opts),
		newStateCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadViper reads the config file and environment.
func (o *rootOptions) loadViper() (*viper.Viper, error) {

	v, err := config.NewViper(o.cfgFile)
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		v.Set(config.KeyLogLevel, o.logLevel)
	}

	return v, nil
}

// loadApp loads the configuration and builds the logger for it.
func (o *rootOptions) loadApp() (*config.AppConfig, *zap.Logger, error) {

	v, err := o.loadViper()
	if err != nil {
		return nil, nil, err
	}

	app, err := config.LoadApp(v)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(app.LogLevel, app.LogEncoding)
	if err != nil {
		return nil, nil, err
	}

	if v.ConfigFileUsed() != "" {
		log.Info("using config file", zap.String("file", v.ConfigFileUsed()))
	}

	return app, log, nil
}

// openStore opens the bolt store at path, or an in-memory store when path is empty.
func openStore(path string, log *zap.Logger) (state.Store, error) {

	if path == "" {
		return state.NewMemoryStore(), nil
	}

	store, err := state.OpenBoltStore(&state.BoltOptions{Path: path, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	return store, nil
}

func closeStore(store state.Store, log *zap.Logger) {
	if err := store.Close(); err != nil {
		log.Warn("failed to close state store", zap.Error(err))
	}
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
