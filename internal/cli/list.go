package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dir01/literecord"
)

// QueryOptions holds flags shared by the list and count commands.
type QueryOptions struct {
	*RootOptions
	Entity  string
	Filters string
}

func (o *QueryOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Entity, "entity", "e", "", "entity (schema name)")
	cmd.Flags().StringVarP(&o.Filters, "filters", "f", "{}", "filter object, reserved list keys included")
	_ = cmd.MarkFlagRequired("entity")
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the records matching a filter object",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "count",
		Short:         "Count the records matching a filter object",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(opts, cmd)
		},
	}
	opts.bind(cmd)
	return cmd
}

func openStore(opts *QueryOptions, cmd *cobra.Command) (*literecord.Store, literecord.Filters, func(), error) {
	e, err := setup(opts.RootOptions)
	if err != nil {
		return nil, nil, nil, err
	}
	schema, err := e.schema(opts.Entity)
	if err != nil {
		return nil, nil, nil, err
	}
	filters, err := literecord.ParseFilters([]byte(opts.Filters))
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := literecord.Open(cmd.Context(), e.config.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	store := literecord.NewStore(db, e.compiler, schema,
		literecord.WithLogger(e.logger),
		literecord.WithPageSize(e.config.List.PageSize))
	cleanup := func() {
		_ = db.Close()
		_ = e.logger.Sync()
	}
	return store, filters, cleanup, nil
}

func runList(opts *QueryOptions, cmd *cobra.Command) error {
	store, filters, cleanup, err := openStore(opts, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	params, err := literecord.ListParamsFromFilters(filters)
	if err != nil {
		return err
	}
	records, err := store.List(cmd.Context(), params)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if records == nil {
			records = []*literecord.Record{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(line))
	}
	return nil
}

func runCount(opts *QueryOptions, cmd *cobra.Command) error {
	store, filters, cleanup, err := openStore(opts, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := store.Count(cmd.Context(), filters)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int64{"count": n})
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
