package mcpapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/manovate/crm/internal/adapters/server/common"
	"github.com/manovate/crm/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// stageList renders the pipeline columns for tool descriptions.
func stageList() string {
	stages := domain.Stages()
	names := make([]string, 0, len(stages))
	for _, stage := range stages {
		names = append(names, string(stage))
	}
	return strings.Join(names, ", ")
}

// viewDescription lists the filter views the pipeline accepts.
func viewDescription() string {
	return "all, active, a status (Open, Won, Lost, Review, Pending), or a stage: " + stageList()
}

// registerDealTools registers deal CRUD, move, and close tools.
func registerDealTools(srv *mcpserver.MCPServer, pipeline common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"manovate.list_deals",
			mcp.WithDescription("List deals, newest first. Attachment payloads are omitted."),
			mcp.WithString("view", mcp.Description(viewDescription())),
			mcp.WithString("search", mcp.Description("Case-insensitive match on title, client, or description")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			deals, err := pipeline.ListDeals(ctx, common.ListDealsRequest{
				View:   req.GetString("view", ""),
				Search: req.GetString("search", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_deals", map[string]any{"deals": deals})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.get_deal",
			mcp.WithDescription("Return one deal with its full activity log."),
			mcp.WithNumber("deal_id", mcp.Required(), mcp.Description("Deal id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dealID, err := req.RequireInt("deal_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			deal, err := pipeline.GetDeal(ctx, int64(dealID))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_deal", deal)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.create_deal",
			mcp.WithDescription("Create a deal. It lands in Clients unless a stage is given."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Deal title")),
			mcp.WithString("description", mcp.Description("Free-form description")),
			mcp.WithString("client", mcp.Description("Client name")),
			mcp.WithNumber("revenue", mcp.Description("Expected revenue in whole currency units")),
			mcp.WithString("stage", mcp.Description("One of: "+stageList())),
			mcp.WithString("status", mcp.Description("Open, Review, or Pending")),
			mcp.WithString("due_date", mcp.Description("Due date as YYYY-MM-DD")),
			mcp.WithArray("assignees", mcp.Description("Assignee badges as {label, color} objects")),
			mcp.WithString("image", mcp.Description("Optional cover image URL")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.CreateDealRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.Title) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "title" not found`), nil
			}
			deal, err := pipeline.CreateDeal(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_deal", deal)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.edit_deal",
			mcp.WithDescription("Edit deal fields. Omitted fields keep their values; use move_deal to change columns."),
			mcp.WithNumber("deal_id", mcp.Required(), mcp.Description("Deal id")),
			mcp.WithString("title", mcp.Description("Deal title")),
			mcp.WithString("description", mcp.Description("Free-form description")),
			mcp.WithString("client", mcp.Description("Client name")),
			mcp.WithNumber("revenue", mcp.Description("Expected revenue in whole currency units")),
			mcp.WithString("status", mcp.Description("Open, Review, or Pending")),
			mcp.WithString("due_date", mcp.Description("Due date as YYYY-MM-DD; empty clears it")),
			mcp.WithArray("assignees", mcp.Description("Replacement assignee badges")),
			mcp.WithString("image", mcp.Description("Cover image URL")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				common.EditDealRequest
				DealID int64 `json:"deal_id"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if args.DealID <= 0 {
				return mcp.NewToolResultError(`invalid_request: required argument "deal_id" not found`), nil
			}
			edit := args.EditDealRequest
			edit.DealID = args.DealID
			deal, err := pipeline.EditDeal(ctx, edit)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("edit_deal", deal)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.delete_deal",
			mcp.WithDescription("Delete a deal. Unknown ids succeed."),
			mcp.WithNumber("deal_id", mcp.Required(), mcp.Description("Deal id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dealID, err := req.RequireInt("deal_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := pipeline.DeleteDeal(ctx, int64(dealID)); err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("delete_deal", map[string]any{"deleted": dealID})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.move_deal",
			mcp.WithDescription("Move a deal between pipeline columns. Moving into Status only opens a won/lost closure; finish it with close_deal."),
			mcp.WithNumber("deal_id", mcp.Required(), mcp.Description("Deal id")),
			mcp.WithString("from", mcp.Required(), mcp.Description("Column the deal is in: "+stageList())),
			mcp.WithString("to", mcp.Required(), mcp.Description("Destination column: "+stageList())),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dealID, err := req.RequireInt("deal_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			from, err := req.RequireString("from")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			to, err := req.RequireString("to")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			moved, err := pipeline.MoveDeal(ctx, common.MoveDealRequest{DealID: int64(dealID), From: from, To: to})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := jsonResult("move_deal", moved)
			if err != nil {
				return nil, err
			}
			result.IsError = moved.Outcome == "rejected"
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.close_deal",
			mcp.WithDescription("Resolve a pending closure as won or lost. The deal becomes read-only."),
			mcp.WithNumber("deal_id", mcp.Required(), mcp.Description("Deal id")),
			mcp.WithString("outcome", mcp.Required(), mcp.Description("won or lost"), mcp.Enum("won", "lost")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dealID, err := req.RequireInt("deal_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			outcome, err := req.RequireString("outcome")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			deal, err := pipeline.CloseDeal(ctx, common.CloseDealRequest{DealID: int64(dealID), Outcome: outcome})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("close_deal", deal)
		},
	)
}

// registerActivityTools registers comment and attachment tools.
func registerActivityTools(srv *mcpserver.MCPServer, pipeline common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"manovate.add_comment",
			mcp.WithDescription("Append a comment to a deal's activity log."),
			mcp.WithNumber("deal_id", mcp.Required(), mcp.Description("Deal id")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Comment text")),
			mcp.WithString("author", mcp.Description("Author name; defaults to the configured identity")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dealID, err := req.RequireInt("deal_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			deal, err := pipeline.AddComment(ctx, common.AddCommentRequest{
				DealID: int64(dealID),
				Text:   text,
				Author: req.GetString("author", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("add_comment", deal)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.add_attachment",
			mcp.WithDescription(fmt.Sprintf("Attach a base64-encoded file to a deal. Files are capped at %d bytes.", domain.MaxAttachmentBytes)),
			mcp.WithNumber("deal_id", mcp.Required(), mcp.Description("Deal id")),
			mcp.WithString("name", mcp.Required(), mcp.Description("File name")),
			mcp.WithString("type", mcp.Description("MIME type")),
			mcp.WithString("data", mcp.Required(), mcp.Description("File content, standard base64")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dealID, err := req.RequireInt("deal_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			data, err := req.RequireString("data")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			deal, err := pipeline.AddAttachment(ctx, common.AddAttachmentRequest{
				DealID:   int64(dealID),
				Name:     name,
				MimeType: req.GetString("type", ""),
			}, base64Reader{r: base64.NewDecoder(base64.StdEncoding, strings.NewReader(data))})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("add_attachment", deal)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.delete_attachment",
			mcp.WithDescription("Remove one attachment from a deal."),
			mcp.WithNumber("deal_id", mcp.Required(), mcp.Description("Deal id")),
			mcp.WithNumber("attachment_id", mcp.Required(), mcp.Description("Attachment id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dealID, err := req.RequireInt("deal_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			attachmentID, err := req.RequireInt("attachment_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			deal, err := pipeline.DeleteAttachment(ctx, int64(dealID), int64(attachmentID))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("delete_attachment", deal)
		},
	)
}

// registerBoardTools registers the board and summary read tools.
func registerBoardTools(srv *mcpserver.MCPServer, pipeline common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"manovate.board",
			mcp.WithDescription("Return deals grouped by pipeline column with per-column revenue."),
			mcp.WithString("view", mcp.Description(viewDescription())),
			mcp.WithString("search", mcp.Description("Case-insensitive match on title, client, or description")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			board, err := pipeline.Board(ctx, common.ListDealsRequest{
				View:   req.GetString("view", ""),
				Search: req.GetString("search", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("board", board)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.summary",
			mcp.WithDescription("Return open, won, and lost deal counts and revenue."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			summary, err := pipeline.Summary(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("summary", summary)
		},
	)
}

// registerNotificationTools registers notification feed tools.
func registerNotificationTools(srv *mcpserver.MCPServer, notifications common.NotificationService) {
	srv.AddTool(
		mcp.NewTool(
			"manovate.list_notifications",
			mcp.WithDescription("List notifications, newest first, with the unread count."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			feed, err := notifications.ListNotifications(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_notifications", feed)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.mark_notification_read",
			mcp.WithDescription("Mark one notification as read."),
			mcp.WithNumber("notification_id", mcp.Required(), mcp.Description("Notification id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireInt("notification_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			n, err := notifications.MarkNotificationRead(ctx, int64(id))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("mark_notification_read", n)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.mark_all_notifications_read",
			mcp.WithDescription("Mark every notification as read."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err := notifications.MarkAllNotificationsRead(ctx); err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("mark_all_notifications_read", map[string]any{"unread": 0})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"manovate.clear_notifications",
			mcp.WithDescription("Delete every notification."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err := notifications.ClearNotifications(ctx); err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("clear_notifications", map[string]any{"cleared": true})
		},
	)
}

// base64Reader reports corrupt input as an invalid request.
type base64Reader struct {
	r io.Reader
}

// Read implements io.Reader.
func (b base64Reader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: attachment data: %v", common.ErrInvalidRequest, err)
	}
	return n, err
}
