package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chainge/go-chainge-kernel/logger"
)

// config is the CLI's yaml configuration.
type config struct {
	LogLevel string `yaml:"log_level"`
}

func loadConfig(path string) (config, error) {
	cfg := config{LogLevel: "info"}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

type app struct {
	cfg config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: logger.Nop()}
	var configPath string

	root := &cobra.Command{
		Use:           "chainge",
		Short:         "Offline tools for the chainge verifiable-memory kernel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = log
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to yaml config")

	root.AddCommand(
		newKeygenCmd(a),
		newStreamIDCmd(a),
		newInspectCmd(a),
		newVectorsCmd(a),
	)
	return root
}
