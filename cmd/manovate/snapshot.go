package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/manovate/crm/internal/adapters/backup/s3backup"
	"github.com/manovate/crm/internal/app"
	"github.com/manovate/crm/internal/config"
	"github.com/spf13/cobra"
)

// backupStore is the remote snapshot store used by export, import, and backups.
type backupStore interface {
	Upload(context.Context, app.Snapshot) (s3backup.Backup, error)
	Download(context.Context, string) (app.Snapshot, error)
	List(context.Context) ([]s3backup.Backup, error)
	Latest(context.Context) (app.Snapshot, s3backup.Backup, error)
}

// backupStoreFactory opens the configured S3 backup store.
var backupStoreFactory = func(ctx context.Context, cfg config.BackupConfig) (backupStore, error) {
	return s3backup.New(ctx, s3backup.Config{
		Bucket:    cfg.S3Bucket,
		Prefix:    cfg.S3Prefix,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		PathStyle: cfg.S3PathStyle,
	})
}

// openBackups resolves the backup store or explains how to configure one.
func (e *runtimeEnv) openBackups(ctx context.Context) (backupStore, error) {
	if !e.cfg.BackupEnabled() {
		return nil, errors.New("s3 backups are not configured: set backup.s3_bucket in " + e.configPath)
	}
	store, err := backupStoreFactory(ctx, e.cfg.Backup)
	if err != nil {
		return nil, fmt.Errorf("open s3 backup store: %w", err)
	}
	return store, nil
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		outPath string
		save    bool
		toS3    bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export deals and notifications as a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "export", func(env *runtimeEnv) error {
				ctx := cmd.Context()
				snap, err := env.svc.ExportSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}

				if toS3 {
					store, err := env.openBackups(ctx)
					if err != nil {
						return err
					}
					backup, err := store.Upload(ctx, snap)
					if err != nil {
						return fmt.Errorf("upload snapshot: %w", err)
					}
					env.logger.Info("snapshot uploaded", "key", backup.Key, "size", backup.Size)
					_, err = fmt.Fprintf(opts.stdout, "uploaded %s (%s)\n", backup.Key, humanize.Bytes(uint64(backup.Size)))
					return err
				}

				encoded, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("encode snapshot json: %w", err)
				}
				encoded = append(encoded, '\n')

				target := outPath
				if save {
					target = filepath.Join(env.paths.SnapshotDir, snapshotFileName(snap.ExportedAt))
				}
				if target == "-" {
					_, err := opts.stdout.Write(encoded)
					return err
				}
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(target, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				env.logger.Info("snapshot written", "path", target, "deals", len(snap.Deals))
				if save {
					_, err = fmt.Fprintln(opts.stdout, target)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().BoolVar(&save, "save", false, "write into the data snapshots directory")
	cmd.Flags().BoolVar(&toS3, "s3", false, "upload to the configured S3 bucket")
	cmd.MarkFlagsMutuallyExclusive("out", "save", "s3")
	return cmd
}

func snapshotFileName(at time.Time) string {
	return "snapshot-" + at.UTC().Format("20060102T150405Z") + ".json"
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var (
		inPath   string
		s3Key    string
		s3Latest bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON snapshot, upserting records by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" && strings.TrimSpace(s3Key) == "" && !s3Latest {
				return errors.New("one of --in, --s3-key, or --s3-latest is required")
			}
			return opts.withEnv(cmd.Context(), "import", func(env *runtimeEnv) error {
				ctx := cmd.Context()
				var (
					snap   app.Snapshot
					source string
				)
				switch {
				case strings.TrimSpace(inPath) != "":
					content, err := readSnapshotFile(inPath)
					if err != nil {
						return err
					}
					if err := json.Unmarshal(content, &snap); err != nil {
						return fmt.Errorf("decode snapshot json: %w", err)
					}
					source = inPath
				default:
					store, err := env.openBackups(ctx)
					if err != nil {
						return err
					}
					if s3Latest {
						latest, backup, err := store.Latest(ctx)
						if err != nil {
							return fmt.Errorf("download latest snapshot: %w", err)
						}
						snap, source = latest, backup.Key
					} else {
						snap, err = store.Download(ctx, s3Key)
						if err != nil {
							return fmt.Errorf("download snapshot: %w", err)
						}
						source = s3Key
					}
				}

				if err := env.svc.ImportSnapshot(ctx, snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				env.logger.Info("snapshot imported", "source", source, "deals", len(snap.Deals), "notifications", len(snap.Notifications))
				_, err := fmt.Fprintf(opts.stdout, "imported %d deals and %d notifications from %s\n", len(snap.Deals), len(snap.Notifications), source)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file ('-' for stdin)")
	cmd.Flags().StringVar(&s3Key, "s3-key", "", "object key of an S3 backup")
	cmd.Flags().BoolVar(&s3Latest, "s3-latest", false, "import the newest S3 backup")
	cmd.MarkFlagsMutuallyExclusive("in", "s3-key", "s3-latest")
	return cmd
}

func readSnapshotFile(path string) ([]byte, error) {
	if path == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read snapshot from stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	return content, nil
}

func newBackupsCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List snapshots stored in the configured S3 bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "backups", func(env *runtimeEnv) error {
				store, err := env.openBackups(cmd.Context())
				if err != nil {
					return err
				}
				backups, err := store.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list backups: %w", err)
				}
				if asJSON {
					return writeJSON(opts.stdout, backups)
				}
				if len(backups) == 0 {
					_, err := io.WriteString(opts.stdout, dimStyle.Render("no backups")+"\n")
					return err
				}
				t := newTable("Key", "Size", "Modified")
				for _, b := range backups {
					t.Row(b.Key, humanize.Bytes(uint64(b.Size)), humanize.Time(b.LastModified))
				}
				_, err = io.WriteString(opts.stdout, t.String()+"\n")
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
