package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dir01/literecord"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Schemas    []string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the literecord CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "literecord",
		Short: "Compile and run filter queries over declared schemas",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file")
	cmd.PersistentFlags().StringSliceVar(&opts.Schemas, "schemas", nil, "schema files (default from config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// env is what every command needs once flags and config are read.
type env struct {
	config   *literecord.Config
	logger   *zap.Logger
	registry *literecord.Registry
	compiler *literecord.Compiler
}

func setup(opts *RootOptions) (*env, error) {
	cfg, err := literecord.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	logger, err := literecord.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	paths := opts.Schemas
	if len(paths) == 0 {
		paths = cfg.Schemas
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no schema files given: use --schemas or the schemas config key")
	}

	registry := literecord.NewRegistry()
	for _, path := range paths {
		schemas, err := literecord.LoadSchemas(path)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(schemas...); err != nil {
			return nil, fmt.Errorf("registering %s: %w", path, err)
		}
	}

	return &env{
		config:   cfg,
		logger:   logger,
		registry: registry,
		compiler: literecord.NewCompiler(registry, literecord.WithLogger(logger)),
	}, nil
}

func (e *env) schema(name string) (*literecord.Schema, error) {
	s, ok := e.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q (known: %v)", name, e.registry.Names())
	}
	return s, nil
}
