// Package cli implements the zefline command-line interface.
//
// zefline maintains a versioned catalog of Raku modules across multiple
// ecosystem repositories and publishes a deterministic, dependency-respecting
// install order for a downstream installer to consume.
//
// # Commands
//
//   - sync: run the full discover → diff → resolve → sort → publish pipeline
//   - order: print the currently published install order
//   - graph: emit the dependency graph as Graphviz DOT text
//   - scrub: remove persisted records for modules gone from all repositories
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context so every command shares one configured
// logger.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/zefline/pkg/buildinfo"
	"github.com/matzehuels/zefline/pkg/pipeline"
	"github.com/matzehuels/zefline/pkg/store"
	"github.com/matzehuels/zefline/pkg/zef"
)

// appName is the application name used for directories and display.
const appName = "zefline"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configFlag string // --config value; empty means the default location
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "zefline computes a deterministic install order for Raku modules",
		Long:         `zefline scans zef-visible ecosystem repositories, arbitrates one winning release per module, resolves dependencies, and publishes a dependency-respecting install order to Redis for a downstream installer.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configFlag, "config", "", "config file (default ~/.config/zefline/config.toml)")

	root.AddCommand(c.syncCommand())
	root.AddCommand(c.orderCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.scrubCommand())

	return root
}

// loadConfig loads the configured or default config file.
func (c *CLI) loadConfig() (Config, error) {
	path := c.configFlag
	explicit := path != ""
	if !explicit {
		path = configPath()
	}
	return loadConfig(path, explicit)
}

// newStore builds the state store from config.
func (c *CLI) newStore(cfg Config) (*store.Store, error) {
	opts, err := cfg.storeOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = c.Logger
	return store.New(opts), nil
}

// newTool builds the zef adapter from config.
func (c *CLI) newTool(cfg Config) *zef.Tool {
	return zef.New(cfg.ZefBin, nil, cfg.Noise)
}

// newRunner builds a pipeline runner from config.
func (c *CLI) newRunner(cfg Config) (*pipeline.Runner, *store.Store, error) {
	st, err := c.newStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewRunner(st, c.newTool(cfg), c.Logger), st, nil
}
