package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	servercommon "github.com/manovate/crm/internal/adapters/server/common"
)

var (
	borderStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	lockedHeaderStyle = headerStyle.Foreground(lipgloss.Color("8"))
	cellStyle         = lipgloss.NewStyle().Padding(0, 1)
	dimStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle        = lipgloss.NewStyle().Bold(true)
)

// statusPalette maps status color tags onto terminal colors.
var statusPalette = map[string]lipgloss.Color{
	"neutral":  lipgloss.Color("7"),
	"positive": lipgloss.Color("10"),
	"negative": lipgloss.Color("9"),
	"review":   lipgloss.Color("13"),
	"pending":  lipgloss.Color("11"),
}

func money(v int64) string {
	return "₹" + humanize.Comma(v)
}

func statusBadge(deal servercommon.Deal) string {
	return lipgloss.NewStyle().Foreground(statusPalette[deal.StatusColor]).Render(deal.Status)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// renderBoard draws one column per stage with a card per deal. Table headers
// render on a single line, so each column's totals lead its body instead.
func renderBoard(board servercommon.Board) string {
	headers := make([]string, len(board.Columns))
	totals := make([]string, len(board.Columns))
	depth := 0
	for i, col := range board.Columns {
		label := col.Stage
		if col.Locked {
			label += " (locked)"
		}
		headers[i] = label
		totals[i] = dimStyle.Render(fmt.Sprintf("%d deals · %s", len(col.Deals), money(col.Revenue)))
		depth = max(depth, len(col.Deals))
	}

	rows := make([][]string, 0, depth+1)
	rows = append(rows, totals)
	for r := 0; r < depth; r++ {
		row := make([]string, len(board.Columns))
		for c, col := range board.Columns {
			if r < len(col.Deals) {
				row[c] = dealCard(col.Deals[r])
			}
		}
		rows = append(rows, row)
	}

	t := newTable(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if col < len(board.Columns) && board.Columns[col].Locked {
					return lockedHeaderStyle
				}
				return headerStyle
			}
			return cellStyle
		})
	return t.String() + "\n" + renderSummary(board.Summary) + "\n"
}

// dealCard renders one board card.
func dealCard(deal servercommon.Deal) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("#%d %s", deal.ID, deal.Title)),
		deal.Client,
		money(deal.Revenue) + " " + statusBadge(deal),
	}
	if deal.DueDate != "" {
		lines = append(lines, dimStyle.Render("due "+deal.DueDate))
	}
	var meta []string
	for _, a := range deal.Assignees {
		meta = append(meta, a.Label)
	}
	if deal.CommentCount > 0 {
		meta = append(meta, fmt.Sprintf("%d comments", deal.CommentCount))
	}
	if deal.AttachmentCount > 0 {
		meta = append(meta, fmt.Sprintf("%d files", deal.AttachmentCount))
	}
	if len(meta) > 0 {
		lines = append(lines, dimStyle.Render(strings.Join(meta, " · ")))
	}
	return strings.Join(lines, "\n")
}

// renderSummary prints the open/won/lost totals line.
func renderSummary(s servercommon.Summary) string {
	return fmt.Sprintf(
		"open %d · %s   won %d · %s   lost %d · %s",
		s.OpenCount, money(s.OpenRevenue),
		s.WonCount, money(s.WonRevenue),
		s.LostCount, money(s.LostRevenue),
	)
}

// renderDealList prints deals as a flat table.
func renderDealList(deals []servercommon.Deal) string {
	if len(deals) == 0 {
		return dimStyle.Render("no deals") + "\n"
	}
	t := newTable("ID", "Title", "Client", "Stage", "Status", "Revenue", "Due")
	for _, d := range deals {
		t.Row(strconv.FormatInt(d.ID, 10), d.Title, d.Client, d.Stage, statusBadge(d), money(d.Revenue), d.DueDate)
	}
	return t.String() + "\n"
}

// renderDealDetail prints one deal with its activity log.
func renderDealDetail(deal servercommon.Deal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(fmt.Sprintf("#%d %s", deal.ID, deal.Title)))
	fmt.Fprintf(&b, "client:   %s\n", deal.Client)
	fmt.Fprintf(&b, "stage:    %s\n", deal.Stage)
	fmt.Fprintf(&b, "status:   %s\n", statusBadge(deal))
	fmt.Fprintf(&b, "revenue:  %s\n", money(deal.Revenue))
	if deal.DueDate != "" {
		fmt.Fprintf(&b, "due:      %s\n", deal.DueDate)
	}
	if deal.Locked {
		fmt.Fprintf(&b, "locked:   closed deals stay in %s\n", deal.Stage)
	}
	if deal.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", deal.Description)
	}
	if len(deal.Comments) > 0 {
		fmt.Fprintf(&b, "\ncomments (%d)\n", len(deal.Comments))
		for _, c := range deal.Comments {
			fmt.Fprintf(&b, "  [%s] %s %s: %s\n", c.Initials, c.Author, dimStyle.Render(humanize.Time(c.Date)), c.Text)
		}
	}
	if len(deal.Attachments) > 0 {
		fmt.Fprintf(&b, "\nattachments (%d)\n", len(deal.Attachments))
		for _, a := range deal.Attachments {
			fmt.Fprintf(&b, "  #%d %s (%s, %s)\n", a.ID, a.Name, a.SizeLabel, a.MimeType)
		}
	}
	return b.String()
}

// renderNotifications prints the feed newest first with an unread marker.
func renderNotifications(feed servercommon.NotificationFeed) string {
	if len(feed.Items) == 0 {
		return dimStyle.Render("no notifications") + "\n"
	}
	t := newTable("", "ID", "Title", "Message", "When")
	for _, n := range feed.Items {
		marker := " "
		if !n.Read {
			marker = "●"
		}
		t.Row(marker, strconv.FormatInt(n.ID, 10), n.Title, n.Message, humanize.Time(n.Timestamp))
	}
	return t.String() + fmt.Sprintf("\n%d unread\n", feed.Unread)
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	encoded = append(encoded, '\n')
	_, err = w.Write(encoded)
	return err
}
