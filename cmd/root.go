package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docstress/internal/banner"
	"docstress/internal/config"
	"docstress/internal/logging"
)

var (
	cfgFile   string
	configErr error

	v      = config.NewViper()
	logger = slog.New(slog.DiscardHandler)

	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "docstress",
	Short: "docstress - parallel write load for document stores",
	Long: `
docstress starts many concurrent workers, each with its own connection to a
document store, has every worker insert the same number of small documents and
records how long each worker took.

Per-worker results are appended to a report collection (or a local results
file) so that runs from many hosts can be compared afterwards.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return fmt.Errorf("config: %w", configErr)
		}
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		l, closeFn, err := logging.New(logging.Options{
			Verbosity: v.GetInt("verbose"),
			Level:     v.GetString("log-level"),
			Dir:       v.GetString("log-file"),
		})
		if err != nil {
			return fmt.Errorf("config: %w: %w", config.ErrConfiguration, err)
		}
		logger, closeLog = l, closeFn
		return nil
	},
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	err := rootCmd.Execute()
	closeLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "docstress: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.docstress.yaml)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "more log output (-v info, -vv debug)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides -v")
	rootCmd.PersistentFlags().String("log-file", "", "also write the log to a timestamped file in this directory")

	rootCmd.AddCommand(runCmd, resultsCmd, jobscriptCmd, dummyCmd)
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
			v.SetConfigType("yaml")
			v.SetConfigName(".docstress")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = err
		}
	}
}
