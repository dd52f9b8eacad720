package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	serveradapter "github.com/manovate/crm/internal/adapters/server"
	"github.com/manovate/crm/internal/platform"
	"github.com/spf13/cobra"
)

// version is stamped at build time.
var version = "dev"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		stop()
		os.Exit(1)
	}
}

// run executes one command line against the given writers.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// rootOptions holds persistent flag state shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	quiet      bool
	stdout     io.Writer
	stderr     io.Writer
}

// newRootCommand builds the manovate command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	envOpts := platform.OptionsFromEnv(os.Getenv, version)
	opts := &rootOptions{
		appName: envOpts.AppName,
		devMode: envOpts.DevMode,
		stdout:  stdout,
		stderr:  stderr,
	}

	root := &cobra.Command{
		Use:   "manovate",
		Short: "Deals pipeline board for a small CRM",
		Long: `manovate keeps a six-column deals pipeline (Clients, Orders, Tasks,
Due Date, Revenue, Status) with comments, attachments, and a notification feed.

Run "manovate serve" to expose the pipeline over HTTP and MCP, or use the
board, deals, and notifications commands directly from the terminal.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "keep runtime logs off stderr")

	root.AddCommand(
		newPathsCommand(opts),
		newServeCommand(opts),
		newBoardCommand(opts),
		newSummaryCommand(opts),
		newDealsCommand(opts),
		newNotificationsCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newBackupsCommand(opts),
		newRevisionsCommand(opts),
	)
	return root
}
