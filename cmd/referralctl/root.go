package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"referral-workers/internal/app"
	"referral-workers/internal/common/config"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/engine/notify"
)

const (
	configFlagName     = "config"
	outputFlagName     = "output"
	outputFlagValJSON  = "json"
	outputFlagValHuman = "human"
)

var rootCmd = &cobra.Command{
	Use:          "referralctl",
	Short:        "Operator tools for the referral engine",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String(configFlagName, "", "Path to a config file (default: configs/config.yaml lookup)")
	rootCmd.PersistentFlags().String(outputFlagName, outputFlagValHuman, "Specify the output format: json,human")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(configFlagName)
	if err != nil {
		return nil, err
	}
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// buildEngine wires the engine with notifications written to the log
// instead of the configured channels.
func buildEngine(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	zapLog := logger.Build(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
		Service:     "referralctl",
	})
	engine, err := app.Build(cmd.Context(), cfg, zapLog, app.Options{
		Notifier: notify.LogDispatcher{Logger: logger.NewZapAdapter(zapLog)},
	})
	if err != nil {
		zapLog.Error("engine wiring failed", zap.Error(err))
		return nil, err
	}
	return engine, nil
}

// printResult writes v as indented JSON or the text human returns.
func printResult(cmd *cobra.Command, v interface{}, human func() string) error {
	output, err := cmd.Flags().GetString(outputFlagName)
	if err != nil {
		return err
	}

	switch output {
	case outputFlagValHuman:
		_, err := fmt.Fprintln(cmd.OutOrStdout(), human())
		return err
	case outputFlagValJSON:
		buf, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(buf))
		return err
	default:
		return fmt.Errorf("%s flag must be either %q or %q", outputFlagName, outputFlagValHuman, outputFlagValJSON)
	}
}
