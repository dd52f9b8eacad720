package app

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/manovate/crm/internal/domain"
)

// dealRecord is the persisted deal shape. It decodes the legacy client layout
// (amount, desc, column, assignee initials, activity counters) and always
// encodes the canonical one.
type dealRecord struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"desc"`
	Client      string           `json:"client"`
	Revenue     int64            `json:"revenue"`
	Stage       string           `json:"stage"`
	Status      string           `json:"status"`
	StatusColor string           `json:"statusColor"`
	DueDate     string           `json:"dueDate,omitempty"`
	Assignees   []assigneeRecord `json:"assignee"`
	Image       string           `json:"image,omitempty"`
	Activity    activityRecord   `json:"activity"`
	CreatedOn   string           `json:"createdOn,omitempty"`
}

// legacyDealRecord accepts every spelling older payloads used.
type legacyDealRecord struct {
	ID          flexNumber     `json:"id"`
	Title       string         `json:"title"`
	Desc        string         `json:"desc"`
	Description string         `json:"description"`
	Client      string         `json:"client"`
	Amount      flexNumber     `json:"amount"`
	Revenue     flexNumber     `json:"revenue"`
	Stage       string         `json:"stage"`
	Column      string         `json:"column"`
	Status      string         `json:"status"`
	StatusColor string         `json:"statusColor"`
	DueDate     string         `json:"dueDate"`
	Assignees   assigneeList   `json:"assignee"`
	Image       string         `json:"image"`
	Activity    activityRecord `json:"activity"`
	CreatedOn   string         `json:"createdOn"`
}

// UnmarshalJSON reconciles legacy field names into the canonical record.
func (r *dealRecord) UnmarshalJSON(data []byte) error {
	var legacy legacyDealRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		// One mistyped field must not cost the whole deal.
		if legacy, err = decodeLegacyFields(data); err != nil {
			return err
		}
	}
	desc := legacy.Desc
	if desc == "" {
		desc = legacy.Description
	}
	// amount wins when both are present, matching the old client's read order.
	revenue := legacy.Revenue
	if legacy.Amount.set && legacy.Amount.value != 0 {
		revenue = legacy.Amount
	}
	stage := legacy.Stage
	if strings.TrimSpace(stage) == "" {
		stage = legacy.Column
	}
	*r = dealRecord{
		ID:          legacy.ID.int64(),
		Title:       legacy.Title,
		Description: desc,
		Client:      legacy.Client,
		Revenue:     revenue.int64(),
		Stage:       stage,
		Status:      legacy.Status,
		StatusColor: legacy.StatusColor,
		DueDate:     legacy.DueDate,
		Assignees:   []assigneeRecord(legacy.Assignees),
		Image:       legacy.Image,
		Activity:    legacy.Activity,
		CreatedOn:   legacy.CreatedOn,
	}
	return nil
}

// decodeLegacyFields decodes each field on its own, leaving mistyped fields at
// their zero value. It fails only when data is not a JSON object.
func decodeLegacyFields(data []byte) (legacyDealRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return legacyDealRecord{}, err
	}
	var legacy legacyDealRecord
	decoders := map[string]func(json.RawMessage){
		"id":          lenient(&legacy.ID),
		"title":       lenient(&legacy.Title),
		"desc":        lenient(&legacy.Desc),
		"description": lenient(&legacy.Description),
		"client":      lenient(&legacy.Client),
		"amount":      lenient(&legacy.Amount),
		"revenue":     lenient(&legacy.Revenue),
		"stage":       lenient(&legacy.Stage),
		"column":      lenient(&legacy.Column),
		"status":      lenient(&legacy.Status),
		"statusColor": lenient(&legacy.StatusColor),
		"dueDate":     lenient(&legacy.DueDate),
		"assignee":    lenient(&legacy.Assignees),
		"image":       lenient(&legacy.Image),
		"activity":    lenient(&legacy.Activity),
		"createdOn":   lenient(&legacy.CreatedOn),
	}
	for name, raw := range fields {
		if decode, ok := decoders[name]; ok {
			decode(raw)
		}
	}
	return legacy, nil
}

// lenient returns a decoder that writes dst only when raw decodes cleanly.
func lenient[T any](dst *T) func(json.RawMessage) {
	return func(raw json.RawMessage) {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			*dst = v
		}
	}
}

type assigneeRecord struct {
	Initials string `json:"initials"`
	Color    string `json:"color,omitempty"`
}

// assigneeList decodes an array of badges, an array of names, or a single name.
type assigneeList []assigneeRecord

// UnmarshalJSON accepts the badge shapes older payloads used.
func (l *assigneeList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = assigneeList{{Initials: single}}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Numbers, booleans and objects carry no usable badge.
		*l = nil
		return nil
	}
	out := make(assigneeList, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			out = append(out, assigneeRecord{Initials: name})
			continue
		}
		var badge assigneeRecord
		if err := json.Unmarshal(item, &badge); err != nil {
			continue
		}
		out = append(out, badge)
	}
	*l = out
	return nil
}

// activityRecord keeps the legacy counters on the wire but never reads them back.
type activityRecord struct {
	Comments        int                `json:"comments"`
	Attachments     int                `json:"attachments"`
	CommentsList    []commentRecord    `json:"commentsList"`
	AttachmentsList []attachmentRecord `json:"attachmentsList"`
}

type commentRecord struct {
	ID       flexNumber `json:"id"`
	Text     string     `json:"text"`
	Author   string     `json:"author"`
	Initials string     `json:"initials,omitempty"`
	Date     string     `json:"date"`
}

type attachmentRecord struct {
	ID        flexNumber `json:"id"`
	Name      string     `json:"name"`
	Size      string     `json:"size"`
	SizeBytes int64      `json:"sizeBytes,omitempty"`
	Date      string     `json:"date"`
	Type      string     `json:"type"`
	Data      string     `json:"data"`
}

type notificationRecord struct {
	ID        flexNumber `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Timestamp string     `json:"timestamp"`
	Read      bool       `json:"read"`
	DealID    int64      `json:"dealId,omitempty"`
}

// flexNumber decodes a JSON number or a numeric string. Unparseable input and
// values outside the int64 range read as absent.
type flexNumber struct {
	value float64
	set   bool
}

func newFlexNumber(v int64) flexNumber {
	return flexNumber{value: float64(v), set: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *flexNumber) UnmarshalJSON(data []byte) error {
	*n = flexNumber{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = flexNumberFrom(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(numberNoise.Replace(s))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*n = flexNumberFrom(f)
	return nil
}

// flexNumberFrom keeps f only when it rounds into the int64 range.
func flexNumberFrom(f float64) flexNumber {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return flexNumber{}
	}
	f = math.Round(f)
	// float64(math.MaxInt64) is 2^63, which is itself out of range.
	if f >= float64(math.MaxInt64) || f < float64(math.MinInt64) {
		return flexNumber{}
	}
	return flexNumber{value: f, set: true}
}

// MarshalJSON implements json.Marshaler.
func (n flexNumber) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(n.int64(), 10)), nil
}

func (n flexNumber) int64() int64 {
	if !n.set {
		return 0
	}
	return int64(math.Round(n.value))
}

var numberNoise = strings.NewReplacer(",", "", "₹", "", "$", "", "_", "")

// dateLayouts lists the timestamp spellings seen in stored payloads.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.DateOnly,
	time.DateTime,
	"1/2/2006",
	"02/01/2006",
	"Jan 2, 2006",
}

// parseTime reads a stored timestamp, returning the zero time for blank or unknown layouts.
func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatDate(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.DateOnly)
}

// dealFromRecord converts a stored record into a normalized deal.
func dealFromRecord(r dealRecord) domain.Deal {
	stage, err := domain.ParseStage(r.Stage)
	if err != nil {
		stage = ""
	}
	var due *time.Time
	if ts := parseTime(r.DueDate); !ts.IsZero() {
		due = &ts
	}
	assignees := make([]domain.Assignee, 0, len(r.Assignees))
	for _, a := range r.Assignees {
		assignees = append(assignees, domain.Assignee{Label: a.Initials, Color: a.Color})
	}
	activity := domain.ActivityLog{
		Comments:    make([]domain.Comment, 0, len(r.Activity.CommentsList)),
		Attachments: make([]domain.Attachment, 0, len(r.Activity.AttachmentsList)),
	}
	for _, c := range r.Activity.CommentsList {
		initials := strings.TrimSpace(c.Initials)
		if initials == "" {
			initials = domain.Initials(c.Author)
		}
		activity.Comments = append(activity.Comments, domain.Comment{
			ID:       c.ID.int64(),
			Text:     c.Text,
			Author:   c.Author,
			Initials: initials,
			Date:     parseTime(c.Date),
		})
	}
	for _, a := range r.Activity.AttachmentsList {
		activity.Attachments = append(activity.Attachments, domain.Attachment{
			ID:        a.ID.int64(),
			Name:      a.Name,
			SizeLabel: a.Size,
			SizeBytes: a.SizeBytes,
			Date:      parseTime(a.Date),
			MimeType:  a.Type,
			Payload:   a.Data,
		})
	}
	return domain.NormalizeDeal(domain.Deal{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Client:      r.Client,
		Revenue:     r.Revenue,
		Stage:       stage,
		Status:      domain.Status(r.Status),
		DueDate:     due,
		Assignees:   assignees,
		Image:       r.Image,
		Activity:    activity,
		CreatedOn:   parseTime(r.CreatedOn),
	})
}

// recordFromDeal converts a deal into its canonical stored shape.
func recordFromDeal(d domain.Deal) dealRecord {
	d = domain.NormalizeDeal(d)
	assignees := make([]assigneeRecord, 0, len(d.Assignees))
	for _, a := range d.Assignees {
		assignees = append(assignees, assigneeRecord{Initials: a.Label, Color: a.Color})
	}
	comments := make([]commentRecord, 0, len(d.Activity.Comments))
	for _, c := range d.Activity.Comments {
		comments = append(comments, commentRecord{
			ID:       newFlexNumber(c.ID),
			Text:     c.Text,
			Author:   c.Author,
			Initials: c.Initials,
			Date:     formatTime(c.Date),
		})
	}
	attachments := make([]attachmentRecord, 0, len(d.Activity.Attachments))
	for _, a := range d.Activity.Attachments {
		attachments = append(attachments, attachmentRecord{
			ID:        newFlexNumber(a.ID),
			Name:      a.Name,
			Size:      a.SizeLabel,
			SizeBytes: a.SizeBytes,
			Date:      formatTime(a.Date),
			Type:      a.MimeType,
			Data:      a.Payload,
		})
	}
	return dealRecord{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Client:      d.Client,
		Revenue:     d.Revenue,
		Stage:       string(d.Stage),
		Status:      string(d.Status),
		StatusColor: string(d.StatusColor),
		DueDate:     formatDate(d.DueDate),
		Assignees:   assignees,
		Image:       d.Image,
		Activity: activityRecord{
			// Counters mirror list lengths for readers of the old layout.
			Comments:        len(comments),
			Attachments:     len(attachments),
			CommentsList:    comments,
			AttachmentsList: attachments,
		},
		CreatedOn: formatTime(d.CreatedOn),
	}
}

func notificationFromRecord(r notificationRecord) domain.Notification {
	return domain.Notification{
		ID:        r.ID.int64(),
		Title:     strings.TrimSpace(r.Title),
		Message:   strings.TrimSpace(r.Message),
		Type:      domain.NormalizeNotificationType(domain.NotificationType(r.Type)),
		Timestamp: parseTime(r.Timestamp),
		Read:      r.Read,
		DealID:    r.DealID,
	}
}

func recordFromNotification(n domain.Notification) notificationRecord {
	return notificationRecord{
		ID:        newFlexNumber(n.ID),
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		Timestamp: formatTime(n.Timestamp),
		Read:      n.Read,
		DealID:    n.DealID,
	}
}
