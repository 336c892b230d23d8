package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"msgfetch/downloader"
	"msgfetch/internal"
	"msgfetch/utils"
)

const maxPreview = 40

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func statusOK(s string) string {
	return color.New(color.FgGreen).Render(s)
}

func groupStatus(s internal.GroupStatus) string {
	switch s {
	case internal.GroupStatusActive:
		return color.New(color.FgGreen).Render(string(s))
	case internal.GroupStatusExpired:
		return color.New(color.FgYellow).Render(string(s))
	default:
		return color.New(color.FgRed).Render(string(s))
	}
}

func renderGroups(w io.Writer, groups []internal.Group) {
	table := newTable(w, "ID", "Name", "Status")
	for _, g := range groups {
		table.Append([]string{strconv.FormatInt(g.ID, 10), g.Name, groupStatus(g.Status)})
	}
	table.Render()
}

func renderMembers(w io.Writer, members []internal.Member) {
	table := newTable(w, "ID", "Name", "Group")
	for _, m := range members {
		table.Append([]string{strconv.FormatInt(m.ID, 10), m.Name, strconv.FormatInt(m.GroupID, 10)})
	}
	table.Render()
}

func renderMessages(w io.Writer, messages []internal.Message) {
	table := newTable(w, "ID", "Time", "Member", "Type", "Text", "Media")
	for _, m := range messages {
		media := ""
		if a, ok := m.PrimaryMedia(); ok {
			media = a.URL
		}
		table.Append([]string{
			strconv.FormatInt(m.ID, 10),
			m.CreatedAt.Local().Format(time.DateTime),
			strconv.FormatInt(m.MemberID, 10),
			string(m.Type),
			preview(m.Body),
			media,
		})
	}
	table.Render()
	fmt.Fprintf(w, "%d messages\n", len(messages))
}

func renderSyncResults(w io.Writer, results []downloader.MemberSyncResult) {
	table := newTable(w, "Group", "Member", "New", "Total", "Media")
	for _, r := range results {
		media := "-"
		if r.Media != nil {
			media = fmt.Sprintf("%d/%d (%s)", r.Media.Downloaded+r.Media.Skipped, r.Media.Total, utils.FormatBytes(r.Media.TotalBytes))
			if r.Media.Failed > 0 {
				media += " " + color.New(color.FgRed).Render(fmt.Sprintf("%d failed", r.Media.Failed))
			}
		}
		newCount := strconv.Itoa(r.NewMessages)
		if r.NewMessages > 0 {
			newCount = statusOK(newCount)
		}
		table.Append([]string{r.Group.Name, r.Member.Name, newCount, strconv.Itoa(r.TotalMessages), media})
	}
	table.Render()
}

// preview flattens text to one line of at most maxPreview runes
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxPreview {
		return s
	}
	return string(runes[:maxPreview-1]) + "…"
}
