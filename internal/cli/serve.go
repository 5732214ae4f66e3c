package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dir01/literecord"
	"github.com/dir01/literecord/httpapi"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve every schema over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			db, err := literecord.Open(cmd.Context(), e.config.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			var stores []*literecord.Store
			for _, name := range e.registry.Names() {
				schema, _ := e.registry.Lookup(name)
				stores = append(stores, literecord.NewStore(db, e.compiler, schema,
					literecord.WithLogger(e.logger),
					literecord.WithPageSize(e.config.List.PageSize)))
			}

			if addr == "" {
				addr = e.config.HTTP.Addr
			}
			app := httpapi.NewApp(httpapi.NewHandler(e.logger, stores...))
			e.logger.Info("listening", zap.String("addr", addr), zap.Strings("entities", e.registry.Names()))
			return app.Listen(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
