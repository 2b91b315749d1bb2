package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the `argproxy-admin` command tree.
// It provides the entry point for operators inspecting links and the link store.
// NewRootCmd 构建 `argproxy-admin` 命令树，供运维人员检查链接与链接存储。
func NewRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "argproxy-admin",
		Short: "A CLI tool for operating the argproxy link proxy.",
		Long: `argproxy-admin parses signed attachment links, computes their store keys,
inspects stored records and resolves links once against the configured backends.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml")

	rootCmd.AddCommand(
		newParseCmd(),
		newKeyCmd(),
		newInspectCmd(&configFile),
		newResolveCmd(&configFile),
	)
	return rootCmd
}

// Execute is the main entry point for the CLI application.
// If an error occurs, it prints the error and exits.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
