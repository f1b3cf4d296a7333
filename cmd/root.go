package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/downpour-dl/downpour/internal/config"
	"github.com/downpour-dl/downpour/internal/downloader"
	"github.com/downpour-dl/downpour/internal/history"
	"github.com/downpour-dl/downpour/internal/logging"
	"github.com/downpour-dl/downpour/internal/notify"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	cfgPath string
	verbose bool

	// Loaded once in PersistentPreRunE, shared by all subcommands.
	settings *config.Settings
	logger   *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "downpour",
	Short:   "A resumable file downloader",
	Long: `Downpour downloads files over HTTP with byte-range resume,
creation policies for existing files, and a recorded download history.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		level := settings.General.LogLevel
		if verbose {
			level = "debug"
		}
		logger = logging.New(level)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "settings file (default ~/.downpour/settings.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.SetVersionTemplate("downpour version {{.Version}}\n")
}

// newManager wires a Manager from the loaded settings. The returned
// cleanup closes the manager and the history store behind it.
func newManager(root string) (*downloader.Manager, func(), error) {
	var store *history.Store
	if settings.General.History {
		s, err := history.Open(settings.HistoryPath(), logger)
		if err != nil {
			logger.Warn("history unavailable", zap.Error(err))
		} else {
			store = s
		}
	}

	mgr, err := downloader.NewManager(downloader.Options{
		Root:          root,
		DataDir:       settings.General.DataDir,
		MaxConcurrent: settings.Transfers.MaxConcurrent,
		Runtime:       settings.ToRuntimeConfig(),
		Notifier:      notify.NewLogNotifier(logger),
		History:       store,
		Logger:        logger,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		if errors.Is(err, downloader.ErrAlreadyRunning) {
			return nil, nil, errors.New("another downpour instance holds the data directory")
		}
		return nil, nil, err
	}

	cleanup := func() {
		mgr.Close()
		if store != nil {
			store.Close()
		}
	}
	return mgr, cleanup, nil
}
