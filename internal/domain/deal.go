package domain

import (
	"strings"
	"time"
)

// Deal defaults applied by NormalizeDeal.
const (
	DefaultClient   = "Target Client"
	UnassignedLabel = "U"
	UnassignedColor = "unassigned"
)

// Assignee is one owner badge on a deal card.
type Assignee struct {
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// Deal represents one negotiation moving through the pipeline.
type Deal struct {
	ID          int64
	Title       string
	Description string
	Client      string
	Revenue     int64
	Stage       Stage
	Status      Status
	StatusColor StatusColor
	DueDate     *time.Time
	Assignees   []Assignee
	Image       string
	Activity    ActivityLog
	CreatedOn   time.Time
}

// DealInput holds input values for deal creation.
type DealInput struct {
	ID          int64
	Title       string
	Description string
	Client      string
	Revenue     int64
	Stage       Stage
	Status      Status
	DueDate     *time.Time
	Assignees   []Assignee
	Image       string
}

// NewDeal constructs a normalized deal in the first column unless a stage is supplied.
func NewDeal(in DealInput, now time.Time) (Deal, error) {
	if in.ID <= 0 {
		return Deal{}, ErrInvalidID
	}
	if strings.TrimSpace(in.Title) == "" {
		return Deal{}, ErrInvalidTitle
	}
	if in.Revenue < 0 {
		return Deal{}, ErrInvalidRevenue
	}
	if in.Stage == "" {
		in.Stage = StageClients
	}
	if !in.Stage.IsValid() {
		return Deal{}, ErrInvalidStage
	}
	if in.Stage.IsTerminal() {
		return Deal{}, ErrInvalidClosureSource
	}
	if in.Status.IsClosed() {
		// Won and Lost are reserved for the closure workflow.
		in.Status = StatusOpen
	}
	return NormalizeDeal(Deal{
		ID:          in.ID,
		Title:       in.Title,
		Description: in.Description,
		Client:      in.Client,
		Revenue:     in.Revenue,
		Stage:       in.Stage,
		Status:      in.Status,
		DueDate:     in.DueDate,
		Assignees:   in.Assignees,
		Image:       in.Image,
		CreatedOn:   now.UTC(),
	}), nil
}

// NormalizeDeal fills defaults and re-derives computed fields. It is applied at
// every read and write boundary so stored deals always satisfy the pipeline invariants.
func NormalizeDeal(d Deal) Deal {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Client = strings.TrimSpace(d.Client)
	if d.Client == "" {
		d.Client = DefaultClient
	}
	if d.Revenue < 0 {
		d.Revenue = 0
	}
	if !d.Stage.IsValid() {
		d.Stage = StageClients
	}
	d.Status = NormalizeStatus(d.Status)
	if d.Stage.IsTerminal() && !d.Status.IsClosed() {
		// A closed column entry without an outcome goes back to await closure.
		d.Stage = StageRevenue
	}
	d.StatusColor = StatusColorFor(d.Status)
	d.DueDate = normalizeDate(d.DueDate)
	d.Assignees = normalizeAssignees(d.Assignees)
	d.Activity = d.Activity.clone()
	d.CreatedOn = d.CreatedOn.UTC()
	return d
}

// IsClosed reports whether the deal sits in the locked terminal column.
func (d Deal) IsClosed() bool {
	return d.Stage.IsTerminal()
}

// Clone returns a deep copy safe for mutation.
func (d Deal) Clone() Deal {
	out := d
	out.Assignees = append([]Assignee(nil), d.Assignees...)
	out.Activity = d.Activity.clone()
	if d.DueDate != nil {
		due := *d.DueDate
		out.DueDate = &due
	}
	return out
}

// normalizeAssignees trims entries and falls back to one unassigned badge.
func normalizeAssignees(in []Assignee) []Assignee {
	out := make([]Assignee, 0, len(in))
	for _, a := range in {
		a.Label = strings.TrimSpace(a.Label)
		a.Color = strings.TrimSpace(a.Color)
		if a.Label == "" {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		out = append(out, Assignee{Label: UnassignedLabel, Color: UnassignedColor})
	}
	return out
}

// normalizeDate truncates a due date to its UTC calendar day.
func normalizeDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &day
}
