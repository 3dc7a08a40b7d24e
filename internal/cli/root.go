// Package cli provides the learnflow command-line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/config"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
)

const (
	applicationName = "learnflow"
	version         = "1.0.0"
)

// rootOptions carries global flags and the viper instance they bind to.
type rootOptions struct {
	v            *viper.Viper
	cfgFile      string
	outputFormat string
	verbose      bool
	showMetrics  bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   applicationName,
		Short: "LearnFlow CLI - sign in and call the LearnFlow API",
		Long: `learnflow is a command-line client for the LearnFlow learning platform.

It keeps a persistent session, attaches credentials to every API call and
renews them transparently when they expire.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initConfig(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.learnflow.yaml)")
	flags.StringVarP(&opts.outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&opts.showMetrics, "metrics", false, "print client metrics after the command")
	flags.String("api-base", "", "API base URL")
	flags.String("store", "", "credential store (file, redis, memory)")
	flags.String("store-path", "", "credential file for the file store")
	flags.String("redis-url", "", "Redis URL for the redis store")

	_ = opts.v.BindPFlag(config.KeyAPIBase, flags.Lookup("api-base"))
	_ = opts.v.BindPFlag(config.KeyStore, flags.Lookup("store"))
	_ = opts.v.BindPFlag(config.KeyStorePath, flags.Lookup("store-path"))
	_ = opts.v.BindPFlag(config.KeyRedisURL, flags.Lookup("redis-url"))

	rootCmd.AddCommand(newAuthCmd(opts))
	rootCmd.AddCommand(newAPICmd(opts))

	return rootCmd
}

// Execute runs the command line and returns the process exit code. It is
// called by main.main().
func Execute(ctx context.Context) int {
	cmd := NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return domain.ExitOK
	}

	code, message := domain.NewDefaultErrorHandler(bootstrapLogger(cmd)).HandleError(err)
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", message)
	return code
}

// initConfig loads .env files, then the config file if any.
func (o *rootOptions) initConfig(cmd *cobra.Command) error {
	if wd, err := os.Getwd(); err == nil {
		if err := config.AutoLoadEnv(wd, bootstrapLogger(cmd)); err != nil {
			return err
		}
	}

	if o.cfgFile != "" {
		absPath, err := filepath.Abs(o.cfgFile)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for config file: %w", err)
		}
		o.v.SetConfigFile(absPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		o.v.AddConfigPath(home)
		o.v.SetConfigType("yaml")
		o.v.SetConfigName(".learnflow")
	}

	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if o.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", o.v.ConfigFileUsed())
	}
	return nil
}
