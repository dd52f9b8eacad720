// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a request the pipeline rules refuse in the deal's current state.
var ErrConflict = errors.New("conflict")

// ErrPayloadTooLarge reports an attachment above the size cap.
var ErrPayloadTooLarge = errors.New("payload too large")

// MaxCommentLength bounds comment text accepted by transports.
const MaxCommentLength = 4000

// Assignee is one avatar badge.
type Assignee struct {
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// Comment is one comment in a deal's activity log.
type Comment struct {
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	Author   string    `json:"author"`
	Initials string    `json:"initials"`
	Date     time.Time `json:"date"`
}

// Attachment is one uploaded file. Payload is only filled on single-deal reads.
type Attachment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SizeLabel string    `json:"size"`
	SizeBytes int64     `json:"size_bytes"`
	Date      time.Time `json:"date"`
	MimeType  string    `json:"type"`
	Payload   string    `json:"data,omitempty"`
}

// Deal is the transport shape of one deal card.
type Deal struct {
	ID              int64        `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	Client          string       `json:"client"`
	Revenue         int64        `json:"revenue"`
	Stage           string       `json:"stage"`
	Status          string       `json:"status"`
	StatusColor     string       `json:"status_color"`
	DueDate         string       `json:"due_date,omitempty"`
	Assignees       []Assignee   `json:"assignees"`
	Image           string       `json:"image,omitempty"`
	CommentCount    int          `json:"comment_count"`
	AttachmentCount int          `json:"attachment_count"`
	Comments        []Comment    `json:"comments"`
	Attachments     []Attachment `json:"attachments"`
	Locked          bool         `json:"locked"`
	CreatedOn       time.Time    `json:"created_on"`
}

// ListDealsRequest selects deals by view and free-text search.
type ListDealsRequest struct {
	View   string `json:"view,omitempty"`
	Search string `json:"search,omitempty"`
}

// CreateDealRequest captures one deal creation.
type CreateDealRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Client      string     `json:"client,omitempty"`
	Revenue     int64      `json:"revenue,omitempty"`
	Stage       string     `json:"stage,omitempty"`
	Status      string     `json:"status,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	Assignees   []Assignee `json:"assignees,omitempty"`
	Image       string     `json:"image,omitempty"`
}

// EditDealRequest captures a partial deal edit. Nil fields are left unchanged.
type EditDealRequest struct {
	DealID      int64      `json:"-"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Client      *string    `json:"client,omitempty"`
	Revenue     *int64     `json:"revenue,omitempty"`
	Status      *string    `json:"status,omitempty"`
	DueDate     *string    `json:"due_date,omitempty"`
	Assignees   []Assignee `json:"assignees,omitempty"`
	Image       *string    `json:"image,omitempty"`
}

// MoveDealRequest captures one drag between columns.
type MoveDealRequest struct {
	DealID int64  `json:"-"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// MoveResult reports what a move did.
type MoveResult struct {
	Outcome string `json:"outcome"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Deal    *Deal  `json:"deal,omitempty"`
}

// CloseDealRequest resolves a pending closure.
type CloseDealRequest struct {
	DealID  int64  `json:"-"`
	Outcome string `json:"outcome"`
}

// AddCommentRequest appends one comment.
type AddCommentRequest struct {
	DealID int64  `json:"-"`
	Text   string `json:"text"`
	Author string `json:"author,omitempty"`
}

// AddAttachmentRequest names an attachment whose bytes arrive as a stream.
type AddAttachmentRequest struct {
	DealID   int64  `json:"-"`
	Name     string `json:"name"`
	MimeType string `json:"type,omitempty"`
}

// BoardColumn is one pipeline column.
type BoardColumn struct {
	Stage   string `json:"stage"`
	Locked  bool   `json:"locked"`
	Revenue int64  `json:"revenue"`
	Deals   []Deal `json:"deals"`
}

// Board is the column-grouped pipeline.
type Board struct {
	Columns []BoardColumn `json:"columns"`
	Summary Summary       `json:"summary"`
}

// Summary aggregates open and closed revenue.
type Summary struct {
	OpenCount   int   `json:"open_count"`
	OpenRevenue int64 `json:"open_revenue"`
	WonCount    int   `json:"won_count"`
	WonRevenue  int64 `json:"won_revenue"`
	LostCount   int   `json:"lost_count"`
	LostRevenue int64 `json:"lost_revenue"`
}

// Notification is one feed entry.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	DealID    int64     `json:"deal_id,omitempty"`
}

// NotificationFeed is the feed plus its unread count.
type NotificationFeed struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

// ChangeEvent reports one rewritten collection.
type ChangeEvent struct {
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	External bool      `json:"external,omitempty"`
}

// PipelineService exposes deal operations to transports.
type PipelineService interface {
	ListDeals(context.Context, ListDealsRequest) ([]Deal, error)
	GetDeal(context.Context, int64) (Deal, error)
	CreateDeal(context.Context, CreateDealRequest) (Deal, error)
	EditDeal(context.Context, EditDealRequest) (Deal, error)
	DeleteDeal(context.Context, int64) error
	MoveDeal(context.Context, MoveDealRequest) (MoveResult, error)
	CloseDeal(context.Context, CloseDealRequest) (Deal, error)
	AddComment(context.Context, AddCommentRequest) (Deal, error)
	AddAttachment(context.Context, AddAttachmentRequest, io.Reader) (Deal, error)
	DeleteAttachment(context.Context, int64, int64) (Deal, error)
	Board(context.Context, ListDealsRequest) (Board, error)
	Summary(context.Context) (Summary, error)
}

// NotificationService exposes the notification feed to transports.
type NotificationService interface {
	ListNotifications(context.Context) (NotificationFeed, error)
	MarkNotificationRead(context.Context, int64) (Notification, error)
	MarkAllNotificationsRead(context.Context) error
	ClearNotifications(context.Context) error
}

// ChangeFeed delivers change events to transports. fn must not block.
type ChangeFeed interface {
	SubscribeChanges(fn func(ChangeEvent)) func()
}
