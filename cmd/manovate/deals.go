package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	servercommon "github.com/manovate/crm/internal/adapters/server/common"
	"github.com/spf13/cobra"
)

// newDealsCommand groups the deal subcommands.
func newDealsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deals",
		Short: "List, edit, and move deals",
	}
	cmd.AddCommand(
		newDealsListCommand(opts),
		newDealsShowCommand(opts),
		newDealsCreateCommand(opts),
		newDealsEditCommand(opts),
		newDealsMoveCommand(opts),
		newDealsCloseCommand(opts),
		newDealsDeleteCommand(opts),
		newDealsCommentCommand(opts),
		newDealsAttachCommand(opts),
		newDealsDetachCommand(opts),
	)
	return cmd
}

func parseDealID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid deal id %q", raw)
	}
	return id, nil
}

// parseAssignees reads LABEL or LABEL:color badges.
func parseAssignees(raw []string) []servercommon.Assignee {
	out := make([]servercommon.Assignee, 0, len(raw))
	for _, item := range raw {
		label, color, _ := strings.Cut(strings.TrimSpace(item), ":")
		if strings.TrimSpace(label) == "" {
			continue
		}
		out = append(out, servercommon.Assignee{Label: strings.TrimSpace(label), Color: strings.TrimSpace(color)})
	}
	return out
}

// printDeal writes a deal as JSON or as a detail view.
func printDeal(w io.Writer, deal servercommon.Deal, asJSON bool) error {
	if asJSON {
		return writeJSON(w, deal)
	}
	_, err := io.WriteString(w, renderDealDetail(deal))
	return err
}

func newDealsListCommand(opts *rootOptions) *cobra.Command {
	var (
		view   string
		search string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "deals list", func(env *runtimeEnv) error {
				deals, err := env.adapter.ListDeals(cmd.Context(), servercommon.ListDealsRequest{View: view, Search: search})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, deals)
				}
				_, err = io.WriteString(opts.stdout, renderDealList(deals))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "all", "all, active, or a stage or status label")
	cmd.Flags().StringVar(&search, "search", "", "case-insensitive match on title, client, or description")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDealsShowCommand(opts *rootOptions) *cobra.Command {
	var (
		asJSON   bool
		withData bool
	)
	cmd := &cobra.Command{
		Use:   "show <deal-id>",
		Short: "Show one deal with its comments and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			return opts.withEnv(cmd.Context(), "deals show", func(env *runtimeEnv) error {
				deal, err := env.adapter.GetDeal(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !withData {
					for i := range deal.Attachments {
						deal.Attachments[i].Payload = ""
					}
				}
				return printDeal(opts.stdout, deal, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&withData, "with-data", false, "include attachment payloads in JSON output")
	return cmd
}

// dealFields is the flag set shared by create and edit.
type dealFields struct {
	title       string
	description string
	client      string
	revenue     int64
	stage       string
	status      string
	dueDate     string
	assignees   []string
	image       string
}

func (f *dealFields) bind(cmd *cobra.Command, withStage bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.title, "title", "", "deal title")
	flags.StringVar(&f.description, "description", "", "deal description")
	flags.StringVar(&f.client, "client", "", "client name")
	flags.Int64Var(&f.revenue, "revenue", 0, "deal value in whole rupees")
	flags.StringVar(&f.status, "status", "", "status label (Open, Review, Pending, ...)")
	flags.StringVar(&f.dueDate, "due", "", "due date (YYYY-MM-DD)")
	flags.StringArrayVar(&f.assignees, "assignee", nil, "assignee badge as LABEL or LABEL:color (repeatable)")
	flags.StringVar(&f.image, "image", "", "cover image URL")
	if withStage {
		flags.StringVar(&f.stage, "stage", "", "starting column (defaults to Clients)")
	}
}

func newDealsCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		fields dealFields
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a deal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), "deals create", func(env *runtimeEnv) error {
				deal, err := env.adapter.CreateDeal(cmd.Context(), servercommon.CreateDealRequest{
					Title:       fields.title,
					Description: fields.description,
					Client:      fields.client,
					Revenue:     fields.revenue,
					Stage:       fields.stage,
					Status:      fields.status,
					DueDate:     fields.dueDate,
					Assignees:   parseAssignees(fields.assignees),
					Image:       fields.image,
				})
				if err != nil {
					return err
				}
				return printDeal(opts.stdout, deal, asJSON)
			})
		},
	}
	fields.bind(cmd, true)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newDealsEditCommand(opts *rootOptions) *cobra.Command {
	var (
		fields dealFields
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "edit <deal-id>",
		Short: "Edit deal fields; only flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			req := servercommon.EditDealRequest{DealID: id}
			changed := cmd.Flags().Changed
			if changed("title") {
				req.Title = &fields.title
			}
			if changed("description") {
				req.Description = &fields.description
			}
			if changed("client") {
				req.Client = &fields.client
			}
			if changed("revenue") {
				req.Revenue = &fields.revenue
			}
			if changed("status") {
				req.Status = &fields.status
			}
			if changed("due") {
				req.DueDate = &fields.dueDate
			}
			if changed("assignee") {
				req.Assignees = parseAssignees(fields.assignees)
			}
			if changed("image") {
				req.Image = &fields.image
			}
			return opts.withEnv(cmd.Context(), "deals edit", func(env *runtimeEnv) error {
				deal, err := env.adapter.EditDeal(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printDeal(opts.stdout, deal, asJSON)
			})
		},
	}
	fields.bind(cmd, false)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDealsMoveCommand(opts *rootOptions) *cobra.Command {
	var (
		from    string
		to      string
		outcome string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "move <deal-id>",
		Short: "Move a deal to another column",
		Long: `Move a deal to another column.

Moving a Revenue deal into Status opens a closure: pass --outcome won or
--outcome lost to close it in the same step, or run "deals close" later.
Closed deals are locked in Status and every move out of it is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			return opts.withEnv(cmd.Context(), "deals move", func(env *runtimeEnv) error {
				ctx := cmd.Context()
				source := strings.TrimSpace(from)
				if source == "" {
					current, err := env.adapter.GetDeal(ctx, id)
					if err != nil {
						return err
					}
					source = current.Stage
				}
				res, err := env.adapter.MoveDeal(ctx, servercommon.MoveDealRequest{DealID: id, From: source, To: to})
				if err != nil {
					return err
				}
				switch res.Outcome {
				case "rejected":
					env.logger.Warn("move rejected", "deal_id", id, "from", source, "to", to, "reason", res.Reason)
					return fmt.Errorf("move rejected (%s): %s", res.Reason, res.Message)
				case "pending_closure":
					if strings.TrimSpace(outcome) == "" {
						if asJSON {
							return writeJSON(opts.stdout, res)
						}
						_, err := fmt.Fprintf(opts.stdout, "deal #%d is pending closure: %s (rerun with --outcome won|lost)\n", id, res.Message)
						return err
					}
					deal, err := env.adapter.CloseDeal(ctx, servercommon.CloseDealRequest{DealID: id, Outcome: outcome})
					if err != nil {
						return err
					}
					return printDeal(opts.stdout, deal, asJSON)
				}
				if asJSON {
					return writeJSON(opts.stdout, res)
				}
				_, err = fmt.Fprintf(opts.stdout, "deal #%d now in %s\n", id, res.Stage)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source column (defaults to the deal's current column)")
	cmd.Flags().StringVar(&to, "to", "", "target column")
	cmd.Flags().StringVar(&outcome, "outcome", "", "won or lost, when moving into Status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newDealsCloseCommand(opts *rootOptions) *cobra.Command {
	var (
		outcome string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "close <deal-id>",
		Short: "Close a Revenue deal as won or lost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			return opts.withEnv(cmd.Context(), "deals close", func(env *runtimeEnv) error {
				deal, err := env.adapter.CloseDeal(cmd.Context(), servercommon.CloseDealRequest{DealID: id, Outcome: outcome})
				if err != nil {
					return err
				}
				return printDeal(opts.stdout, deal, asJSON)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "won or lost")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func newDealsDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <deal-id>",
		Short: "Delete a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			return opts.withEnv(cmd.Context(), "deals delete", func(env *runtimeEnv) error {
				if err := env.adapter.DeleteDeal(cmd.Context(), id); err != nil {
					return err
				}
				_, err := fmt.Fprintf(opts.stdout, "deleted deal #%d\n", id)
				return err
			})
		},
	}
}

func newDealsCommentCommand(opts *rootOptions) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "comment <deal-id> <text...>",
		Short: "Add a comment to a deal",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			return opts.withEnv(cmd.Context(), "deals comment", func(env *runtimeEnv) error {
				deal, err := env.adapter.AddComment(cmd.Context(), servercommon.AddCommentRequest{DealID: id, Text: text, Author: author})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(opts.stdout, "deal #%d now has %d comments\n", id, deal.CommentCount)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "comment author (defaults to identity.display_name)")
	return cmd
}

func newDealsAttachCommand(opts *rootOptions) *cobra.Command {
	var (
		name     string
		mimeType string
	)
	cmd := &cobra.Command{
		Use:   "attach <deal-id> <file>",
		Short: "Attach a file to a deal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			path := args[1]
			if strings.TrimSpace(name) == "" {
				name = filepath.Base(path)
			}
			if strings.TrimSpace(mimeType) == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(path))
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open attachment: %w", err)
			}
			defer f.Close()

			return opts.withEnv(cmd.Context(), "deals attach", func(env *runtimeEnv) error {
				deal, err := env.adapter.AddAttachment(cmd.Context(), servercommon.AddAttachmentRequest{DealID: id, Name: name, MimeType: mimeType}, f)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(opts.stdout, "deal #%d now has %d attachments\n", id, deal.AttachmentCount)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "attachment name (defaults to the file name)")
	cmd.Flags().StringVar(&mimeType, "type", "", "MIME type (defaults from the file extension)")
	return cmd
}

func newDealsDetachCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <deal-id> <attachment-id>",
		Short: "Remove an attachment from a deal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			attachmentID, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid attachment id %q", args[1])
			}
			return opts.withEnv(cmd.Context(), "deals detach", func(env *runtimeEnv) error {
				deal, err := env.adapter.DeleteAttachment(cmd.Context(), id, attachmentID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(opts.stdout, "deal #%d now has %d attachments\n", id, deal.AttachmentCount)
				return err
			})
		},
	}
}
