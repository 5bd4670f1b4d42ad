// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/markysoft/vani/internal/config"
	"github.com/markysoft/vani/internal/observability"
)

type contextKey int

const configKey contextKey = iota

// NewRootCommand builds a fresh command tree. Each call is independent, so
// the interactive shell can run one per line.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vani",
		Short:         "vani drives a Chromium page to track requests, scan links and call page methods.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "vani"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting vani", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is ./vani.yaml)")
	flags.Bool("headless", true, "run the browser without a window")
	flags.Duration("timeout", 0, "how long waits poll before failing (overrides wait.timeout)")
	flags.Bool("no-tracking", false, "do not install the request hook")
	rootCmd.SetVersionTemplate("vani version {{.Version}}\n")

	rootCmd.AddCommand(newLinksCmd())
	rootCmd.AddCommand(newCrawlCmd())
	rootCmd.AddCommand(newAwaitCmd())
	rootCmd.AddCommand(newInvokeCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx and logs a failure.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		observability.Sync()
		return err
	}
	observability.Sync()
	return nil
}

// initializeConfig reads the config file and applies flags the user set.
// Precedence: flags, then VANI_ environment variables, then file, then defaults.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("vani")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		v.Set("browser.headless", f.Value.String() == "true")
	}
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		d, _ := cmd.Flags().GetDuration("timeout")
		v.Set("wait.timeout", d)
	}
	if f := cmd.Flags().Lookup("no-tracking"); f != nil && f.Changed {
		off, _ := cmd.Flags().GetBool("no-tracking")
		v.Set("tracking.enabled", !off)
	}
	return nil
}

// getConfig returns the configuration loaded by the root command.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
