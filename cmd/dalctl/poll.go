package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

type pollOptions struct {
	params         []string
	interval       int
	commandTimeout int
	watchTimeout   int
	asXML          bool
}

func newPollCmd() *cobra.Command {
	var o pollOptions

	cmd := &cobra.Command{
		Use:   "poll <query-name>",
		Short: "Run a query repeatedly until it returns rows or the timeout elapses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParameters(o.params)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				query, spec, provider, err := a.query(args[0])
				if err != nil {
					return err
				}

				var opts []dbx.PollerOption
				if o.watchTimeout > 0 {
					opts = append(opts, dbx.WithWatchTimeout(o.watchTimeout))
				}

				table, err := dbx.NewPoller(provider, spec, query, a.deps, opts...).
					StartWatching(ctx, params, o.commandTimeout, o.interval)
				if err != nil {
					return err
				}

				if table == nil || table.RowCount() == 0 {
					a.logger.LogInfo(ctx, fmt.Sprintf("poll of '%s' ended without rows", query.Name))
					return nil
				}

				return writeTables(cmd.OutOrStdout(), o.asXML, table)
			})
		},
	}

	fs := cmd.Flags()
	fs.StringArrayVarP(&o.params, "param", "p", nil, "parameter as name:type=value")
	fs.IntVar(&o.interval, "interval", 60, "seconds between two polls")
	fs.IntVar(&o.commandTimeout, "command-timeout", 0, "command timeout in seconds, 0 uses the specification")
	fs.IntVar(&o.watchTimeout, "timeout", 0, "overall poll timeout in seconds, 0 uses the command timeout")
	fs.BoolVar(&o.asXML, "xml", false, "render the result as XML instead of JSON")

	return cmd
}
