package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/manovate/crm/internal/app"
	"github.com/manovate/crm/internal/domain"
)

var (
	_ PipelineService     = (*AppServiceAdapter)(nil)
	_ NotificationService = (*AppServiceAdapter)(nil)
	_ ChangeFeed          = (*AppServiceAdapter)(nil)
)

// pendingClosureMessage tells clients what finishes a pending closure.
const pendingClosureMessage = "choose won or lost to close the deal"

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	return nil
}

// ListDeals lists deals matching the request, without attachment payloads.
func (a *AppServiceAdapter) ListDeals(ctx context.Context, in ListDealsRequest) ([]Deal, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	deals, err := a.service.SearchDeals(ctx, app.DealFilter{View: in.View, Search: in.Search})
	if err != nil {
		return nil, mapAppError("list deals", err)
	}
	out := make([]Deal, 0, len(deals))
	for _, deal := range deals {
		out = append(out, mapDomainDeal(deal, false))
	}
	return out, nil
}

// GetDeal returns one deal including attachment payloads.
func (a *AppServiceAdapter) GetDeal(ctx context.Context, dealID int64) (Deal, error) {
	if err := a.ready(); err != nil {
		return Deal{}, err
	}
	deal, err := a.service.GetDeal(ctx, dealID)
	if err != nil {
		return Deal{}, mapAppError("get deal", err)
	}
	return mapDomainDeal(deal, true), nil
}

// CreateDeal creates one deal.
func (a *AppServiceAdapter) CreateDeal(ctx context.Context, in CreateDealRequest) (Deal, error) {
	if err := a.ready(); err != nil {
		return Deal{}, err
	}
	input := app.CreateDealInput{
		Title:       in.Title,
		Description: in.Description,
		Client:      in.Client,
		Revenue:     in.Revenue,
		Status:      domain.Status(in.Status),
		Assignees:   toDomainAssignees(in.Assignees),
		Image:       in.Image,
	}
	if strings.TrimSpace(in.Stage) != "" {
		stage, err := domain.ParseStage(in.Stage)
		if err != nil {
			return Deal{}, invalidRequest("stage", err)
		}
		input.Stage = stage
	}
	due, err := parseDueDate(in.DueDate)
	if err != nil {
		return Deal{}, err
	}
	input.DueDate = due
	deal, err := a.service.CreateDeal(ctx, input)
	if err != nil {
		return Deal{}, mapAppError("create deal", err)
	}
	return mapDomainDeal(deal, true), nil
}

// EditDeal applies a partial edit.
func (a *AppServiceAdapter) EditDeal(ctx context.Context, in EditDealRequest) (Deal, error) {
	if err := a.ready(); err != nil {
		return Deal{}, err
	}
	input := app.EditDealInput{
		DealID:      in.DealID,
		Title:       in.Title,
		Description: in.Description,
		Client:      in.Client,
		Revenue:     in.Revenue,
		Image:       in.Image,
	}
	if in.Status != nil {
		status := domain.Status(*in.Status)
		input.Status = &status
	}
	if in.DueDate != nil {
		due, err := parseDueDate(*in.DueDate)
		if err != nil {
			return Deal{}, err
		}
		input.DueDate = due
		input.ClearDueDate = due == nil
	}
	if in.Assignees != nil {
		input.Assignees = toDomainAssignees(in.Assignees)
	}
	deal, err := a.service.EditDeal(ctx, input)
	if err != nil {
		return Deal{}, mapAppError("edit deal", err)
	}
	return mapDomainDeal(deal, true), nil
}

// DeleteDeal removes one deal. Unknown ids succeed.
func (a *AppServiceAdapter) DeleteDeal(ctx context.Context, dealID int64) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("delete deal", a.service.DeleteDeal(ctx, dealID))
}

// MoveDeal runs one drag. Rejections are reported in the result, not as errors.
func (a *AppServiceAdapter) MoveDeal(ctx context.Context, in MoveDealRequest) (MoveResult, error) {
	if err := a.ready(); err != nil {
		return MoveResult{}, err
	}
	from, err := domain.ParseStage(in.From)
	if err != nil {
		return MoveResult{}, invalidRequest("from", err)
	}
	to, err := domain.ParseStage(in.To)
	if err != nil {
		return MoveResult{}, invalidRequest("to", err)
	}
	res, err := a.service.AttemptMove(ctx, in.DealID, from, to)
	if err != nil {
		return MoveResult{}, mapAppError("move deal", err)
	}
	out := MoveResult{
		Outcome: string(res.Outcome),
		Stage:   string(res.Stage),
		Reason:  string(res.Reason),
	}
	switch res.Outcome {
	case app.MoveRejected:
		out.Message = res.Err().Error()
	case app.MovePendingClosure:
		out.Message = pendingClosureMessage
	}
	if res.Deal.ID != 0 {
		deal := mapDomainDeal(res.Deal, false)
		out.Deal = &deal
	}
	return out, nil
}

// CloseDeal resolves a pending closure as won or lost.
func (a *AppServiceAdapter) CloseDeal(ctx context.Context, in CloseDealRequest) (Deal, error) {
	if err := a.ready(); err != nil {
		return Deal{}, err
	}
	outcome, err := domain.ParseOutcome(in.Outcome)
	if err != nil {
		return Deal{}, invalidRequest("outcome", err)
	}
	deal, err := a.service.ResolveClosure(ctx, in.DealID, outcome)
	if err != nil {
		return Deal{}, mapAppError("close deal", err)
	}
	return mapDomainDeal(deal, false), nil
}

// AddComment validates and appends one comment.
func (a *AppServiceAdapter) AddComment(ctx context.Context, in AddCommentRequest) (Deal, error) {
	if err := a.ready(); err != nil {
		return Deal{}, err
	}
	text, err := ValidateCommentText(in.Text)
	if err != nil {
		return Deal{}, err
	}
	deal, err := a.service.AddComment(ctx, in.DealID, text, in.Author)
	if err != nil {
		return Deal{}, mapAppError("add comment", err)
	}
	return mapDomainDeal(deal, false), nil
}

// AddAttachment streams one attachment into the deal.
func (a *AppServiceAdapter) AddAttachment(ctx context.Context, in AddAttachmentRequest, data io.Reader) (Deal, error) {
	if err := a.ready(); err != nil {
		return Deal{}, err
	}
	deal, err := a.service.AddAttachment(ctx, in.DealID, domain.AttachmentInput{Name: in.Name, MimeType: in.MimeType}, data)
	if err != nil {
		return Deal{}, mapAppError("add attachment", err)
	}
	return mapDomainDeal(deal, false), nil
}

// DeleteAttachment removes one attachment.
func (a *AppServiceAdapter) DeleteAttachment(ctx context.Context, dealID, attachmentID int64) (Deal, error) {
	if err := a.ready(); err != nil {
		return Deal{}, err
	}
	deal, err := a.service.DeleteAttachment(ctx, dealID, attachmentID)
	if err != nil {
		return Deal{}, mapAppError("delete attachment", err)
	}
	return mapDomainDeal(deal, false), nil
}

// Board groups filtered deals by column and adds the unfiltered summary.
func (a *AppServiceAdapter) Board(ctx context.Context, in ListDealsRequest) (Board, error) {
	if err := a.ready(); err != nil {
		return Board{}, err
	}
	columns, err := a.service.Board(ctx, app.DealFilter{View: in.View, Search: in.Search})
	if err != nil {
		return Board{}, mapAppError("board", err)
	}
	summary, err := a.Summary(ctx)
	if err != nil {
		return Board{}, err
	}
	out := Board{Columns: make([]BoardColumn, 0, len(columns)), Summary: summary}
	for _, col := range columns {
		deals := make([]Deal, 0, len(col.Deals))
		for _, deal := range col.Deals {
			deals = append(deals, mapDomainDeal(deal, false))
		}
		out.Columns = append(out.Columns, BoardColumn{
			Stage:   string(col.Stage),
			Locked:  col.Locked,
			Revenue: col.Revenue,
			Deals:   deals,
		})
	}
	return out, nil
}

// Summary totals the pipeline.
func (a *AppServiceAdapter) Summary(ctx context.Context) (Summary, error) {
	if err := a.ready(); err != nil {
		return Summary{}, err
	}
	s, err := a.service.Summary(ctx)
	if err != nil {
		return Summary{}, mapAppError("summary", err)
	}
	return Summary(s), nil
}

// ListNotifications returns the feed with its unread count.
func (a *AppServiceAdapter) ListNotifications(ctx context.Context) (NotificationFeed, error) {
	if err := a.ready(); err != nil {
		return NotificationFeed{}, err
	}
	items, err := a.service.ListNotifications(ctx)
	if err != nil {
		return NotificationFeed{}, mapAppError("list notifications", err)
	}
	feed := NotificationFeed{Items: make([]Notification, 0, len(items))}
	for _, n := range items {
		if !n.Read {
			feed.Unread++
		}
		feed.Items = append(feed.Items, mapDomainNotification(n))
	}
	return feed, nil
}

// MarkNotificationRead marks one notification read.
func (a *AppServiceAdapter) MarkNotificationRead(ctx context.Context, id int64) (Notification, error) {
	if err := a.ready(); err != nil {
		return Notification{}, err
	}
	n, err := a.service.MarkNotificationRead(ctx, id)
	if err != nil {
		return Notification{}, mapAppError("mark notification read", err)
	}
	return mapDomainNotification(n), nil
}

// MarkAllNotificationsRead marks the whole feed read.
func (a *AppServiceAdapter) MarkAllNotificationsRead(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("mark all notifications read", a.service.MarkAllNotificationsRead(ctx))
}

// ClearNotifications empties the feed.
func (a *AppServiceAdapter) ClearNotifications(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("clear notifications", a.service.ClearNotifications(ctx))
}

// SubscribeChanges forwards record-store change events.
func (a *AppServiceAdapter) SubscribeChanges(fn func(ChangeEvent)) func() {
	if a == nil || a.service == nil || fn == nil {
		return func() {}
	}
	return a.service.Subscribe(func(ev app.ChangeEvent) {
		fn(ChangeEvent{Key: ev.Key, At: ev.At, External: ev.External})
	})
}

// ValidateCommentText trims text and rejects blank or oversized comments.
func ValidateCommentText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("comment text is required: %w", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return "", fmt.Errorf("comment text exceeds %d characters: %w", MaxCommentLength, ErrInvalidRequest)
	}
	return text, nil
}

// parseDueDate accepts YYYY-MM-DD or RFC3339; blank means no due date.
func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("due_date %q must be YYYY-MM-DD: %w", raw, ErrInvalidRequest)
}

func invalidRequest(field string, err error) error {
	return fmt.Errorf("%s: %w", field, errors.Join(ErrInvalidRequest, err))
}

// mapAppError maps app and domain errors into transport error classes.
func mapAppError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrNotFound, err))
	case errors.Is(err, domain.ErrAttachmentTooLarge):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrPayloadTooLarge, err))
	case errors.Is(err, domain.ErrLockedTerminal),
		errors.Is(err, domain.ErrInvalidClosureSource),
		errors.Is(err, app.ErrStaleSource):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrConflict, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidStage),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrInvalidRevenue),
		errors.Is(err, domain.ErrInvalidAttachment),
		errors.Is(err, app.ErrInvalidSnapshot):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// mapDomainDeal converts a domain deal to its transport shape.
func mapDomainDeal(deal domain.Deal, withPayloads bool) Deal {
	out := Deal{
		ID:              deal.ID,
		Title:           deal.Title,
		Description:     deal.Description,
		Client:          deal.Client,
		Revenue:         deal.Revenue,
		Stage:           string(deal.Stage),
		Status:          string(deal.Status),
		StatusColor:     string(deal.StatusColor),
		Image:           deal.Image,
		CommentCount:    deal.Activity.CommentCount(),
		AttachmentCount: deal.Activity.AttachmentCount(),
		Comments:        make([]Comment, 0, len(deal.Activity.Comments)),
		Attachments:     make([]Attachment, 0, len(deal.Activity.Attachments)),
		Assignees:       make([]Assignee, 0, len(deal.Assignees)),
		Locked:          deal.IsClosed(),
		CreatedOn:       deal.CreatedOn,
	}
	if deal.DueDate != nil {
		out.DueDate = deal.DueDate.Format(time.DateOnly)
	}
	for _, as := range deal.Assignees {
		out.Assignees = append(out.Assignees, Assignee(as))
	}
	for _, c := range deal.Activity.Comments {
		out.Comments = append(out.Comments, Comment(c))
	}
	for _, att := range deal.Activity.Attachments {
		mapped := Attachment(att)
		if !withPayloads {
			mapped.Payload = ""
		}
		out.Attachments = append(out.Attachments, mapped)
	}
	return out
}

func mapDomainNotification(n domain.Notification) Notification {
	return Notification{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		Timestamp: n.Timestamp,
		Read:      n.Read,
		DealID:    n.DealID,
	}
}

func toDomainAssignees(in []Assignee) []domain.Assignee {
	if in == nil {
		return nil
	}
	out := make([]domain.Assignee, 0, len(in))
	for _, as := range in {
		out = append(out, domain.Assignee(as))
	}
	return out
}
