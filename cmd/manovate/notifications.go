package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newNotificationsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "Read and manage the notification feed",
	}
	cmd.AddCommand(
		newNotificationsListCommand(opts),
		newNotificationsReadCommand(opts),
		&cobra.Command{
			Use:   "read-all",
			Short: "Mark every notification as read",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withEnv(cmd.Context(), "notifications read-all", func(env *runtimeEnv) error {
					if err := env.adapter.MarkAllNotificationsRead(cmd.Context()); err != nil {
						return err
					}
					_, err := fmt.Fprintln(opts.stdout, "all notifications marked read")
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every notification",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withEnv(cmd.Context(), "notifications clear", func(env *runtimeEnv) error {
					if err := env.adapter.ClearNotifications(cmd.Context()); err != nil {
						return err
					}
					_, err := fmt.Fprintln(opts.stdout, "notifications cleared")
					return err
				})
			},
		},
	)
	return cmd
}

func newNotificationsListCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "notifications list", func(env *runtimeEnv) error {
				feed, err := env.adapter.ListNotifications(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, feed)
				}
				_, err = io.WriteString(opts.stdout, renderNotifications(feed))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newNotificationsReadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid notification id %q", args[0])
			}
			return opts.withEnv(cmd.Context(), "notifications read", func(env *runtimeEnv) error {
				n, err := env.adapter.MarkNotificationRead(cmd.Context(), id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(opts.stdout, "marked %q read\n", n.Title)
				return err
			})
		},
	}
}
