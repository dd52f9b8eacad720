package domain

import (
	"strings"
	"time"
	"unicode"
)

// DefaultAuthorName is used when a comment is posted without an author.
const DefaultAuthorName = "You"

// Comment stores one entry in a deal's activity log.
type Comment struct {
	ID       int64
	Text     string
	Author   string
	Initials string
	Date     time.Time
}

// CommentInput holds input values for comment creation.
type CommentInput struct {
	ID     int64
	Text   string
	Author string
}

// NewComment constructs a comment. Empty text is accepted; callers guard it.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	if in.ID <= 0 {
		return Comment{}, ErrInvalidID
	}
	author := strings.TrimSpace(in.Author)
	if author == "" {
		author = DefaultAuthorName
	}
	return Comment{
		ID:       in.ID,
		Text:     strings.TrimSpace(in.Text),
		Author:   author,
		Initials: Initials(author),
		Date:     now.UTC(),
	}, nil
}

// Initials derives up to two upper-case letters from a display name.
// Single-word names use their first two letters ("You" -> "YO").
func Initials(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	switch len(words) {
	case 0:
		return UnassignedLabel
	case 1:
		runes := []rune(words[0])
		if len(runes) > 2 {
			runes = runes[:2]
		}
		return strings.ToUpper(string(runes))
	default:
		first := []rune(words[0])[0]
		last := []rune(words[len(words)-1])[0]
		return strings.ToUpper(string([]rune{first, last}))
	}
}
