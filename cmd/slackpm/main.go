package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/slackpm/cmd/slackpm/botcmd"
	"github.com/quailyquaily/slackpm/cmd/slackpm/configcmd"
)

func main() {
	root := &cobra.Command{
		Use:           "slackpm",
		Short:         "Slack bot that extracts actionable tasks from channel messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "Config file path (default ./config.yaml, then $HOME/.slackpm/config.yaml).")

	root.AddCommand(botcmd.New())
	root.AddCommand(configcmd.New())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); strings.TrimSpace(path) != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".slackpm"))
		}
	}
	viper.SetEnvPrefix("SLACKPM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}
