package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshlb/lb/cmd/lb/commands"
)

var rootCmd = &cobra.Command{
	Use:   "lb",
	Short: "lb - a concurrent TCP load balancer for a compute cluster",
	Long: `lb routes clients to registered compute servers over four
independent TCP listeners: client handshake, server registration, JSON
status, and an admin command channel.

Examples:
  lb serve                       Start with default ports
  lb serve --config lb.toml      Start from a config file
  lb version                     Show build information`,
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
