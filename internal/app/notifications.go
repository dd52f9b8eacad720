package app

import (
	"context"
	"fmt"

	"github.com/manovate/crm/internal/domain"
)

// PushNotification prepends one unread notification to the feed.
func (s *Service) PushNotification(ctx context.Context, in domain.NotificationInput) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushNotification(ctx, in)
}

// ListNotifications returns the feed, newest first.
func (s *Service) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadNotifications(ctx)
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	items, err := s.ListNotifications(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range items {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// MarkNotificationRead flags one notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id int64) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.loadNotifications(ctx)
	if err != nil {
		return domain.Notification{}, err
	}
	for i := range items {
		if items[i].ID != id {
			continue
		}
		items[i].Read = true
		if err := s.saveNotifications(ctx, items); err != nil {
			return domain.Notification{}, err
		}
		return items[i], nil
	}
	return domain.Notification{}, fmt.Errorf("notification %d: %w", id, ErrNotFound)
}

// MarkAllNotificationsRead flags every notification as read.
func (s *Service) MarkAllNotificationsRead(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.loadNotifications(ctx)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].Read = true
	}
	return s.saveNotifications(ctx, items)
}

// ClearNotifications empties the feed.
func (s *Service) ClearNotifications(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveNotifications(ctx, nil)
}

// pushNotification appends to the feed. Callers hold s.mu.
func (s *Service) pushNotification(ctx context.Context, in domain.NotificationInput) (domain.Notification, error) {
	items, err := s.loadNotifications(ctx)
	if err != nil {
		return domain.Notification{}, err
	}
	var floor int64
	for _, n := range items {
		floor = max(floor, n.ID)
	}
	n, err := domain.NewNotification(s.nextID(floor), in, s.clock())
	if err != nil {
		return domain.Notification{}, err
	}
	items = append([]domain.Notification{n}, items...)
	if err := s.saveNotifications(ctx, items); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func (s *Service) loadNotifications(ctx context.Context) ([]domain.Notification, error) {
	records, err := s.notifications.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(records))
	for _, r := range records {
		out = append(out, notificationFromRecord(r))
	}
	return out, nil
}

func (s *Service) saveNotifications(ctx context.Context, items []domain.Notification) error {
	records := make([]notificationRecord, 0, len(items))
	for _, n := range items {
		records = append(records, recordFromNotification(n))
	}
	return s.notifications.Save(ctx, records)
}
