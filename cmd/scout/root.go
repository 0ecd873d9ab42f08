package main

import (
	"github.com/spf13/cobra"

	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	apiKey     string
	baseURL    string
	model      string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "scout",
		Short:         "Thinker/doer web-testing agent",
		Long:          "scout plans web tests with a thinker model and runs them in a browser with a doer model.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to the config file (default ~/.scout/config.yaml)")
	pf.StringVar(&flags.apiKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY)")
	pf.StringVar(&flags.baseURL, "base-url", "", "OpenAI-compatible API base URL")
	pf.StringVar(&flags.model, "model", "", "Default model for every role")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCommand(flags),
		newRunCommand(flags),
		newHistoryCommand(flags),
		newVersionCommand(),
	)
	return root
}

// loadConfig loads the configuration and applies the logging flags.
// When logToFile is set and no file is configured, logs go to the default
// log file so they do not interleave with terminal output.
func loadConfig(flags *globalFlags, logToFile bool) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	opts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: cfg.Logging.File}
	if logToFile && opts.File == "" {
		if path, err := logging.DefaultLogFile(); err == nil {
			opts.File = path
		}
	}
	if err := logging.Setup(opts); err != nil {
		return nil, err
	}
	return cfg, nil
}
