package app

import "time"

// demoDealRecords returns the six sample deals, one per column.
func demoDealRecords() []dealRecord {
	type demo struct {
		id                         int64
		title, desc, client, stage string
		status, due, badge, color  string
		revenue                    int64
		created                    string
	}
	demos := []demo{
		{1, "Website Redesign", "Complete overhaul of company website", "Acme Corp", "Clients", "Open", "2025-11-20", "JD", "blue", 12000, "2025-10-12T10:00:00Z"},
		{2, "SEO Campaign", "Q1 SEO optimization and content strategy", "Globex Inc", "Orders", "Open", "2025-11-25", "AS", "green", 5000, "2025-10-15T11:30:00Z"},
		{3, "Enterprise License", "500-seat license for core product", "Soylent Corp", "Tasks", "Open", "2025-12-01", "MK", "red", 75000, "2025-10-20T14:00:00Z"},
		{4, "Mobile App Dev", "iOS and Android app development", "Initech", "Due Date", "Open", "2025-12-10", "BP", "indigo", 45000, "2025-10-22T16:45:00Z"},
		{5, "Cloud Migration", "Migrate legacy systems to AWS", "Umbrella Corp", "Revenue", "Open", "2025-10-30", "RW", "teal", 120000, "2025-09-10T09:00:00Z"},
		{6, "Q4 Marketing", "End of year push", "Cyberdyne", "Status", "Won", "2025-09-01", "T8", "gray", 25000, "2025-08-15T10:00:00Z"},
	}
	out := make([]dealRecord, 0, len(demos))
	for _, d := range demos {
		out = append(out, dealRecord{
			ID:          d.id,
			Title:       d.title,
			Description: d.desc,
			Client:      d.client,
			Revenue:     d.revenue,
			Stage:       d.stage,
			Status:      d.status,
			DueDate:     d.due,
			Assignees:   []assigneeRecord{{Initials: d.badge, Color: d.color}},
			Activity: activityRecord{
				CommentsList:    []commentRecord{},
				AttachmentsList: []attachmentRecord{},
			},
			CreatedOn: d.created,
		})
	}
	return out
}

// demoNotificationRecords returns the three sample notifications relative to now.
func demoNotificationRecords(now time.Time) []notificationRecord {
	return []notificationRecord{
		{
			ID:        newFlexNumber(1),
			Title:     "Deal Won!",
			Message:   "The 'Website Redesign' deal has been marked as Won.",
			Type:      "success",
			Timestamp: formatTime(now.Add(-time.Hour)),
		},
		{
			ID:        newFlexNumber(2),
			Title:     "New Lead Assigned",
			Message:   "You have been assigned a new lead: Sarah Smith.",
			Type:      "info",
			Timestamp: formatTime(now.Add(-2 * time.Hour)),
		},
		{
			ID:        newFlexNumber(3),
			Title:     "Task Overdue",
			Message:   "The task 'Follow up with MicroDesign' was due yesterday.",
			Type:      "warning",
			Timestamp: formatTime(now.Add(-24 * time.Hour)),
			Read:      true,
		},
	}
}
