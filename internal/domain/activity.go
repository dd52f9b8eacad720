package domain

import "slices"

// ActivityLog holds the per-deal comment and attachment lists, newest first.
// Counts are always derived from list lengths.
type ActivityLog struct {
	Comments    []Comment
	Attachments []Attachment
}

// CommentCount returns the number of comments.
func (a ActivityLog) CommentCount() int {
	return len(a.Comments)
}

// AttachmentCount returns the number of attachments.
func (a ActivityLog) AttachmentCount() int {
	return len(a.Attachments)
}

// PrependComment adds a comment at the head of the log.
func (a *ActivityLog) PrependComment(c Comment) {
	a.Comments = append([]Comment{c}, a.Comments...)
}

// PrependAttachment adds an attachment at the head of the log.
func (a *ActivityLog) PrependAttachment(att Attachment) {
	a.Attachments = append([]Attachment{att}, a.Attachments...)
}

// RemoveAttachment drops the attachment with the given id and reports whether one was removed.
func (a *ActivityLog) RemoveAttachment(id int64) bool {
	before := len(a.Attachments)
	a.Attachments = slices.DeleteFunc(a.Attachments, func(att Attachment) bool {
		return att.ID == id
	})
	return len(a.Attachments) != before
}

// clone deep-copies both lists.
func (a ActivityLog) clone() ActivityLog {
	return ActivityLog{
		Comments:    append([]Comment{}, a.Comments...),
		Attachments: append([]Attachment{}, a.Attachments...),
	}
}
