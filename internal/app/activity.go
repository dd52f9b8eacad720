package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/manovate/crm/internal/domain"
)

// AddComment prepends a comment to a deal's activity log. Blank text is not
// rejected here; adapters refuse it before calling.
func (s *Service) AddComment(ctx context.Context, dealID int64, text, author string) (domain.Deal, error) {
	if strings.TrimSpace(author) == "" {
		author = s.author
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	deal, err := s.dealForActivity(ctx, dealID)
	if err != nil {
		return domain.Deal{}, err
	}
	var floor int64
	for _, c := range deal.Activity.Comments {
		floor = max(floor, c.ID)
	}
	comment, err := domain.NewComment(domain.CommentInput{
		ID:     s.nextID(floor),
		Text:   text,
		Author: author,
	}, s.clock())
	if err != nil {
		return domain.Deal{}, err
	}
	deal.Activity.PrependComment(comment)
	return s.updateDeal(ctx, deal, true)
}

// AddAttachment reads a file from r and prepends it to a deal's activity log.
// At most MaxAttachmentBytes+1 bytes are read; anything larger is refused
// before the store is touched.
func (s *Service) AddAttachment(ctx context.Context, dealID int64, in domain.AttachmentInput, r io.Reader) (domain.Deal, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Deal{}, domain.ErrInvalidAttachment
	}
	if r == nil {
		r = strings.NewReader("")
	}
	data, err := io.ReadAll(io.LimitReader(contextReader{ctx: ctx, r: r}, domain.MaxAttachmentBytes+1))
	if err != nil {
		return domain.Deal{}, fmt.Errorf("read attachment %q: %w", in.Name, err)
	}
	if len(data) > domain.MaxAttachmentBytes {
		return domain.Deal{}, domain.ErrAttachmentTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	deal, err := s.dealForActivity(ctx, dealID)
	if err != nil {
		return domain.Deal{}, err
	}
	var floor int64
	for _, a := range deal.Activity.Attachments {
		floor = max(floor, a.ID)
	}
	attachment, err := domain.NewAttachment(s.nextID(floor), in, data, s.clock())
	if err != nil {
		return domain.Deal{}, err
	}
	deal.Activity.PrependAttachment(attachment)
	return s.updateDeal(ctx, deal, true)
}

// DeleteAttachment removes an attachment by id. A missing id still persists and succeeds.
func (s *Service) DeleteAttachment(ctx context.Context, dealID, attachmentID int64) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deal, err := s.dealForActivity(ctx, dealID)
	if err != nil {
		return domain.Deal{}, err
	}
	deal.Activity.RemoveAttachment(attachmentID)
	return s.updateDeal(ctx, deal, true)
}

// dealForActivity loads a mutable copy of one deal. Callers hold s.mu.
func (s *Service) dealForActivity(ctx context.Context, dealID int64) (domain.Deal, error) {
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return domain.Deal{}, err
	}
	idx := indexOfDeal(deals, dealID)
	if idx < 0 {
		return domain.Deal{}, fmt.Errorf("deal %d: %w", dealID, ErrNotFound)
	}
	return deals[idx].Clone(), nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
