// Command dalctl runs named queries, polls and change watches from a specification registry,
// and encrypts connection strings for it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type globalOptions struct {
	configDir string
	specPath  string
	logLevel  string
}

var globals globalOptions

var rootCmd = &cobra.Command{
	Use:   "dalctl",
	Short: "Data access layer command line tool",
	Long: `dalctl executes the query specifications of a registry file against SQL Server,
Oracle or PostgreSQL, polls or watches them for changes, and encrypts connection strings
so they can be stored in the registry.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags(), &globals)

	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newPollCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newEncryptCmd())
}

func addGlobalFlags(fs *pflag.FlagSet, o *globalOptions) {
	fs.StringVar(&o.configDir, "config-dir", "", "directory holding property.yaml (property-<env>.yaml when ENVIRONMENT is set)")
	fs.StringVarP(&o.specPath, "specs", "s", "", "specification registry file (yaml or json), overrides 'specifications'")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// withApp builds the app, runs fn and releases the connection pools.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(globals.configDir, globals.specPath, globals.logLevel)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	return fn(ctx, a)
}
