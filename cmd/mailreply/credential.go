package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nhle/mailreply/internal/credential"
	"github.com/nhle/mailreply/internal/model"
)

func credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage secrets stored in the OS keyring",
		Long: fmt.Sprintf(`Secrets left empty in the config and environment are read from the
OS keyring. Valid keys: %s.`, strings.Join(credential.Keys, ", ")),
	}
	cmd.AddCommand(credentialSetCmd(), credentialDeleteCmd())
	return cmd
}

func credentialSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret, read from the terminal or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !credential.ValidKey(key) {
				return fmt.Errorf("unknown credential key %q", key)
			}

			value, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), key)
			if err != nil {
				return err
			}
			if value == "" {
				return errors.New("empty secret")
			}

			if err := credential.NewKeyring(model.DefaultDataDir()).Set(key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", key)
			return nil
		},
	}
}

func credentialDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !credential.ValidKey(key) {
				return fmt.Errorf("unknown credential key %q", key)
			}
			if err := credential.NewKeyring(model.DefaultDataDir()).Delete(key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
			return nil
		},
	}
}

// readSecret reads without echo when in is a terminal, otherwise one line.
func readSecret(in io.Reader, prompt io.Writer, key string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "%s: ", key)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
