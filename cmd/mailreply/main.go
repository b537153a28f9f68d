// Command mailreply answers unseen mail with AI-generated replies.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nhle/mailreply/internal/credential"
	"github.com/nhle/mailreply/internal/logging"
	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/theme"
)

type globalOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "mailreply",
		Short:         "Answer unseen mail with AI-generated replies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", model.DefaultConfigPath(), "Path to the YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Log debug output, including AI prompts")

	cmd.AddCommand(
		runCmd(opts),
		watchCmd(opts),
		historyCmd(opts),
		credentialCmd(),
		configCmd(opts),
	)
	return cmd
}

// loadConfig reads the config and fills empty secrets from the keyring.
func loadConfig(opts *globalOptions) (*model.AppConfig, *log.Logger, error) {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.debug {
		cfg.Debug = true
	}

	logger := logging.New(os.Stderr, cfg.Debug)

	if err := credential.FillSecrets(cfg, credential.NewKeyring(model.DefaultDataDir())); err != nil {
		logger.Warn("keyring unavailable, using configured secrets only", "err", err)
	}

	return cfg, logger, nil
}
