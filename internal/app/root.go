package app

import (
	"github.com/spf13/cobra"

	"github.com/mrcode/loop-engine/internal/config"
)

// Execute runs the command line
func Execute() error {
	return newRootCmd().Execute()
}

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "loop",
		Short:         "Closed-loop insulin dosing engine",
		Long:          "loop predicts glucose from insulin, carbohydrate and glucose history and recommends temp basal rates and boluses.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is the per-user config directory)")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides config")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (json or console), overrides config")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRecommendCmd(opts),
		newEffectsCmd(opts),
		newIOBCmd(opts),
		newCOBCmd(opts),
		newConfigCmd(opts),
	)

	return rootCmd
}

// loadConfig reads the env file and the config, then applies flag overrides
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var envFiles []string
	if o.envFile != "" {
		envFiles = append(envFiles, o.envFile)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg, nil
}

func (o *rootOptions) wire() (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return wireApp(cfg)
}
