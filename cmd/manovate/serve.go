package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	serveradapter "github.com/manovate/crm/internal/adapters/server"
	"github.com/spf13/cobra"
)

func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			w := opts.stdout
			_, _ = fmt.Fprintf(w, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(w, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(w, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(w, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(w, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(w, "store_dir: %s\n", paths.StoreDir)
			_, _ = fmt.Fprintf(w, "snapshot_dir: %s\n", paths.SnapshotDir)
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP endpoint",
		Long: `Serve the pipeline over HTTP.

The REST API and its server-sent change stream live under --api-endpoint,
the stateless MCP streamable-HTTP endpoint under --mcp-endpoint, and
/healthz and /readyz report liveness and storage readiness.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "serve", func(env *runtimeEnv) error {
				ctx, cancel := context.WithCancel(cmd.Context())
				watchDone := make(chan struct{})
				if env.backend.watcher != nil {
					go func() {
						defer close(watchDone)
						err := env.backend.watcher.Watch(ctx, env.store.Events().Publish)
						if err != nil && !errors.Is(err, context.Canceled) {
							env.logger.Warn("external change watcher stopped", "err", err)
						}
					}()
				} else {
					close(watchDone)
				}
				defer func() {
					cancel()
					<-watchDone
				}()

				cfg := serveradapter.Config{
					HTTPBind:      firstNonEmpty(httpBind, env.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, env.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, env.cfg.Server.MCPEndpoint),
					ServerName:    opts.appName,
					ServerVersion: version,
				}
				env.logger.Info("serve starting", "bind", cfg.HTTPBind, "driver", env.backend.driver, "watch", env.backend.watcher != nil)
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Pipeline:      env.adapter,
					Notifications: env.adapter,
					Changes:       env.adapter,
					Logger:        env.logger.Sink(),
					Ready:         env.backend.ready,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (defaults to server.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (defaults to server.api_endpoint)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (defaults to server.mcp_endpoint)")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func newRevisionsCommand(opts *rootOptions) *cobra.Command {
	var (
		key   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "List recent writes of a collection (sqlite driver only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "revisions", func(env *runtimeEnv) error {
				if env.backend.sqlite == nil {
					return fmt.Errorf("revisions need the sqlite driver, have %q", env.backend.driver)
				}
				target := strings.TrimSpace(key)
				if target == "" {
					target, _ = env.svc.Keys()
				}
				revs, err := env.backend.sqlite.Revisions(cmd.Context(), target, limit)
				if err != nil {
					return fmt.Errorf("list revisions: %w", err)
				}
				if len(revs) == 0 {
					_, err := io.WriteString(opts.stdout, dimStyle.Render("no revisions for "+target)+"\n")
					return err
				}
				t := newTable("Rev", "Key", "Size", "Written")
				for _, r := range revs {
					t.Row(strconv.FormatInt(r.ID, 10), r.Key, humanize.Bytes(uint64(r.SizeBytes)), humanize.Time(r.WrittenAt))
				}
				_, err = io.WriteString(opts.stdout, t.String()+"\n")
				return err
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "collection key (defaults to the deals key)")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum revisions to list")
	return cmd
}
