package domain

import "errors"

var (
	ErrInvalidID            = errors.New("invalid id")
	ErrInvalidTitle         = errors.New("invalid title")
	ErrInvalidStage         = errors.New("invalid stage")
	ErrInvalidOutcome       = errors.New("invalid closure outcome")
	ErrInvalidRevenue       = errors.New("invalid revenue")
	ErrInvalidAttachment    = errors.New("invalid attachment")
	ErrAttachmentTooLarge   = errors.New("attachment exceeds size limit")
	ErrLockedTerminal       = errors.New("closed deals are locked and cannot be moved")
	ErrInvalidClosureSource = errors.New("deals can only be closed from the revenue stage")
)
