package main

import (
	"fmt"
	"io"

	servercommon "github.com/manovate/crm/internal/adapters/server/common"
	"github.com/spf13/cobra"
)

func newBoardCommand(opts *rootOptions) *cobra.Command {
	var (
		view   string
		search string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Render the pipeline board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "board", func(env *runtimeEnv) error {
				board, err := env.adapter.Board(cmd.Context(), servercommon.ListDealsRequest{View: view, Search: search})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, board)
				}
				_, err = io.WriteString(opts.stdout, renderBoard(board))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "all", "all, active, or a stage or status label")
	cmd.Flags().StringVar(&search, "search", "", "case-insensitive match on title, client, or description")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSummaryCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print open, won, and lost revenue totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "summary", func(env *runtimeEnv) error {
				summary, err := env.adapter.Summary(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, summary)
				}
				_, err = fmt.Fprintln(opts.stdout, renderSummary(summary))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
