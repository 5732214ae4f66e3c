package cli

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/dir01/literecord"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Entity  string
	Filters string
	Or      bool
	Count   bool
	Inline  bool
	Driver  string
}

// CompileResult is the JSON output of the compile command.
type CompileResult struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the SQL a filter object compiles to",
		Long: `Compile a filter object against an entity and print the resulting SQL.

Filters are given as a JSON (or YAML) object, e.g.
  literecord compile --schemas schemas.yaml --entity users \
    --filters '{"name_like": "%ann%", "organization": {"name": "acme"}}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Entity, "entity", "e", "", "entity (schema name)")
	cmd.Flags().StringVarP(&opts.Filters, "filters", "f", "{}", "filter object")
	cmd.Flags().BoolVar(&opts.Or, "or", false, "join filters with OR")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the count query")
	cmd.Flags().BoolVar(&opts.Inline, "inline", false, "inline arguments into the SQL")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "rebind placeholders for this driver (postgres, pgx, sqlite3)")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	e, err := setup(opts.RootOptions)
	if err != nil {
		return err
	}
	schema, err := e.schema(opts.Entity)
	if err != nil {
		return err
	}
	filters, err := literecord.ParseFilters([]byte(opts.Filters))
	if err != nil {
		return err
	}

	conj := literecord.ConjAnd
	if opts.Or {
		conj = literecord.ConjOr
	}
	q, err := e.compiler.Compile(schema, filters, nil, conj)
	if err != nil {
		return err
	}

	var (
		text string
		args []any
	)
	if opts.Count {
		text, args, err = q.CountSql()
	} else {
		text, args, err = q.ToSql()
	}
	if err != nil {
		return err
	}

	if opts.Inline {
		text, args = literecord.Inline(text, args), nil
	} else if opts.Driver != "" {
		text = sqlx.Rebind(sqlx.BindType(opts.Driver), text)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if args == nil {
			args = []any{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(CompileResult{SQL: text, Args: args})
	}
	fmt.Fprintln(out, text)
	for i, a := range args {
		fmt.Fprintf(out, "  $%d = %v\n", i+1, a)
	}
	return nil
}
