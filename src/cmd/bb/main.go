// Package main provides the bb CLI for starting and waiting on Bitbucket
// pipelines.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bbpipe/src/config"
	"bbpipe/src/logger"
	"bbpipe/src/provider"
)

var (
	// v holds flag and environment configuration for every command.
	v = config.NewViper()
	// log is set up from --log-level before any command runs.
	log logger.Logger = logger.NewConsoleLogger()
	// logLevel is the raw --log-level value.
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bb",
	Short: "bb - run and wait on Bitbucket pipelines",
	Long: `bb starts custom Bitbucket pipelines and waits for builds to finish.

Credentials come from --user/--password, BB_USER/BB_PASSWORD, or the system
keychain (see 'bb login'). Set REDPANDA_BROKERS to publish pipeline events and
POSTGRES_DSN to keep a persistent wait history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log = logger.NewConsoleLoggerWithLevel(os.Stderr, level)
		return nil
	},
}

// errFailed signals a failed build. The result line has already been logged.
var errFailed = errors.New("build failed")

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logger.LevelInfo, "log level (WARNING, INFO, DEBUG)")
	rootCmd.PersistentFlags().String(config.KeyProfile, config.DefaultProfile, "keychain profile [env: BB_PROFILE]")
	bindFlag(v, rootCmd, config.KeyProfile)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(eventsCmd)
}

// bindFlag binds a flag to its viper key so the flag overrides the
// environment.
func bindFlag(vp *viper.Viper, cmd *cobra.Command, key string) {
	// BindPFlag only fails on a nil flag.
	if err := vp.BindPFlag(key, cmd.PersistentFlags().Lookup(key)); err != nil {
		panic(fmt.Sprintf("bind --%s: %v", key, err))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, provider.WrapError(err))
		}
		os.Exit(1)
	}
}
