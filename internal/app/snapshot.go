package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/manovate/crm/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "manovate.snapshot.v1"

// Snapshot is a portable export of every deal and notification.
type Snapshot struct {
	Version       string                 `json:"version"`
	ExportedAt    time.Time              `json:"exported_at"`
	Deals         []SnapshotDeal         `json:"deals"`
	Notifications []SnapshotNotification `json:"notifications,omitempty"`
}

// SnapshotDeal represents snapshot deal data used by this package.
type SnapshotDeal struct {
	ID          int64                `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Client      string               `json:"client"`
	Revenue     int64                `json:"revenue"`
	Stage       domain.Stage         `json:"stage"`
	Status      domain.Status        `json:"status"`
	DueDate     *time.Time           `json:"due_date,omitempty"`
	Assignees   []domain.Assignee    `json:"assignees"`
	Image       string               `json:"image,omitempty"`
	Comments    []SnapshotComment    `json:"comments"`
	Attachments []SnapshotAttachment `json:"attachments"`
	CreatedOn   time.Time            `json:"created_on"`
}

// SnapshotComment represents one comment persisted in a snapshot.
type SnapshotComment struct {
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	Author   string    `json:"author"`
	Initials string    `json:"initials"`
	Date     time.Time `json:"date"`
}

// SnapshotAttachment represents one attachment persisted in a snapshot.
type SnapshotAttachment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SizeLabel string    `json:"size_label"`
	SizeBytes int64     `json:"size_bytes"`
	Date      time.Time `json:"date"`
	MimeType  string    `json:"mime_type"`
	Payload   string    `json:"payload"`
}

// SnapshotNotification represents one notification persisted in a snapshot.
type SnapshotNotification struct {
	ID        int64                   `json:"id"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Type      domain.NotificationType `json:"type"`
	Timestamp time.Time               `json:"timestamp"`
	Read      bool                    `json:"read"`
	DealID    int64                   `json:"deal_id,omitempty"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	notifications, err := s.loadNotifications(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:       SnapshotVersion,
		ExportedAt:    s.clock().UTC(),
		Deals:         make([]SnapshotDeal, 0, len(deals)),
		Notifications: make([]SnapshotNotification, 0, len(notifications)),
	}
	for _, d := range deals {
		snap.Deals = append(snap.Deals, snapshotDealFromDomain(d))
	}
	for _, n := range notifications {
		snap.Notifications = append(snap.Notifications, SnapshotNotification{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			Timestamp: n.Timestamp,
			Read:      n.Read,
			DealID:    n.DealID,
		})
	}
	return snap, nil
}

// ImportSnapshot upserts snapshot records by id. Records not named in the
// snapshot are kept; imported deals replace stored ones wholesale.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return err
	}
	for _, sd := range snap.Deals {
		deal := sd.toDomain()
		if idx := indexOfDeal(deals, deal.ID); idx >= 0 {
			deals[idx] = deal
			continue
		}
		deals = append(deals, deal)
	}
	if err := s.saveDeals(ctx, deals); err != nil {
		return err
	}

	if len(snap.Notifications) == 0 {
		return nil
	}
	notifications, err := s.loadNotifications(ctx)
	if err != nil {
		return err
	}
	for _, sn := range snap.Notifications {
		n := domain.Notification{
			ID:        sn.ID,
			Title:     strings.TrimSpace(sn.Title),
			Message:   strings.TrimSpace(sn.Message),
			Type:      domain.NormalizeNotificationType(sn.Type),
			Timestamp: sn.Timestamp.UTC(),
			Read:      sn.Read,
			DealID:    sn.DealID,
		}
		idx := slices.IndexFunc(notifications, func(existing domain.Notification) bool {
			return existing.ID == n.ID
		})
		if idx >= 0 {
			notifications[idx] = n
			continue
		}
		notifications = append(notifications, n)
	}
	slices.SortStableFunc(notifications, func(a, b domain.Notification) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return s.saveNotifications(ctx, notifications)
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version: %q", ErrInvalidSnapshot, s.Version)
	}
	dealIDs := map[int64]struct{}{}
	for i, d := range s.Deals {
		if d.ID <= 0 {
			return fmt.Errorf("%w: deals[%d].id is required", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(d.Title) == "" {
			return fmt.Errorf("%w: deals[%d].title is required", ErrInvalidSnapshot, i)
		}
		if d.Revenue < 0 {
			return fmt.Errorf("%w: deals[%d].revenue must be >= 0", ErrInvalidSnapshot, i)
		}
		if !d.Stage.IsValid() {
			return fmt.Errorf("%w: deals[%d].stage invalid: %q", ErrInvalidSnapshot, i, d.Stage)
		}
		if d.Stage.IsTerminal() && !d.Status.IsClosed() {
			return fmt.Errorf("%w: deals[%d] in %s must be Won or Lost", ErrInvalidSnapshot, i, d.Stage)
		}
		if _, ok := dealIDs[d.ID]; ok {
			return fmt.Errorf("%w: duplicate deal id: %d", ErrInvalidSnapshot, d.ID)
		}
		dealIDs[d.ID] = struct{}{}
	}
	notificationIDs := map[int64]struct{}{}
	for i, n := range s.Notifications {
		if n.ID <= 0 {
			return fmt.Errorf("%w: notifications[%d].id is required", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(n.Title) == "" {
			return fmt.Errorf("%w: notifications[%d].title is required", ErrInvalidSnapshot, i)
		}
		if _, ok := notificationIDs[n.ID]; ok {
			return fmt.Errorf("%w: duplicate notification id: %d", ErrInvalidSnapshot, n.ID)
		}
		notificationIDs[n.ID] = struct{}{}
	}
	return nil
}

func snapshotDealFromDomain(d domain.Deal) SnapshotDeal {
	out := SnapshotDeal{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Client:      d.Client,
		Revenue:     d.Revenue,
		Stage:       d.Stage,
		Status:      d.Status,
		DueDate:     d.DueDate,
		Assignees:   d.Assignees,
		Image:       d.Image,
		Comments:    make([]SnapshotComment, 0, len(d.Activity.Comments)),
		Attachments: make([]SnapshotAttachment, 0, len(d.Activity.Attachments)),
		CreatedOn:   d.CreatedOn,
	}
	for _, c := range d.Activity.Comments {
		out.Comments = append(out.Comments, SnapshotComment(c))
	}
	for _, a := range d.Activity.Attachments {
		out.Attachments = append(out.Attachments, SnapshotAttachment(a))
	}
	return out
}

func (sd SnapshotDeal) toDomain() domain.Deal {
	activity := domain.ActivityLog{
		Comments:    make([]domain.Comment, 0, len(sd.Comments)),
		Attachments: make([]domain.Attachment, 0, len(sd.Attachments)),
	}
	for _, c := range sd.Comments {
		activity.Comments = append(activity.Comments, domain.Comment(c))
	}
	for _, a := range sd.Attachments {
		activity.Attachments = append(activity.Attachments, domain.Attachment(a))
	}
	return domain.NormalizeDeal(domain.Deal{
		ID:          sd.ID,
		Title:       sd.Title,
		Description: sd.Description,
		Client:      sd.Client,
		Revenue:     sd.Revenue,
		Stage:       sd.Stage,
		Status:      sd.Status,
		DueDate:     sd.DueDate,
		Assignees:   sd.Assignees,
		Image:       sd.Image,
		Activity:    activity,
		CreatedOn:   sd.CreatedOn,
	})
}
