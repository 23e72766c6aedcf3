// Package cmd provides the CLI commands for gubinge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grahame/gubinge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gubinge",
	Short: "gubinge - SSH agent proxy",
	Long: `gubinge sits between an SSH client and a real ssh-agent, forwarding
every agent-protocol request while applying a fixed, auditable policy to
each message: RSA identity requests are answered empty, SSH2 identity
lists pass through an operator-configurable filter, and every other
opcode is either proxied, dropped, or answered with a synthetic failure
according to a closed table. Optional CEL overlay rules in the config
can replace the table's action for individual opcodes.

Quick start:
  1. Run an ssh-agent (or reuse an existing one) and note SSH_AUTH_SOCK.
  2. Run: gubinge serve
  3. Point SSH_AUTH_SOCK at the socket gubinge printed.

Configuration:
  Config is loaded from gubinge.yaml in the current directory,
  $HOME/.gubinge/, or /etc/gubinge/.

  Environment variables can override config values with the GUBINGE_
  prefix. Example: GUBINGE_BIND_PATH=/tmp/gubinge.sock`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gubinge.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
