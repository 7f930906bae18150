// Command bufferpool exercises a buffer pool over a heap file.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/djdv/go-bufferpool"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:           "bufferpool",
		Short:         "Run workloads against a page buffer pool.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.AddCommand(newBenchCommand(stdout, stderr))
	rc.AddCommand(newConfigCommand(stdout))
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// loadConfig reads path if set, then applies flags on top
// of whatever the file did not override.
func loadConfig(path string, flags *bufferpool.Config, changed func(string) bool) (*bufferpool.Config, error) {
	if path == "" {
		return flags, flags.Validate()
	}
	cfg, err := bufferpool.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if changed("io-buffers") {
		cfg.NumIOBuffers = flags.NumIOBuffers
	}
	if changed("cache-size") {
		cfg.DefaultCacheSize = flags.DefaultCacheSize
	}
	if changed("cache-sizes") {
		cfg.CacheSizes = flags.CacheSizes
	}
	if changed("load-queue-hint") {
		cfg.LoadQueueDepthHint = flags.LoadQueueDepthHint
	}
	return cfg, cfg.Validate()
}

func newConfigCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration.",
		Long: `config prints the default pool configuration as TOML to stdout
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			encoded, err := bufferpool.NewDefaultConfig().TOML()
			if err != nil {
				return err
			}
			_, err = stdout.Write(encoded)
			return err
		},
	}
}
