package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

const textTemplate = `Daily app report for %s
Total active* users: %s (%s%%)
Feed
- Users with actions: %s (%s%%)
- Viewed posts: %s (%s%%)
- Avg actions per user: %s (%s%%)
- CTR: %s (%s%%)
Messages
- Total messages: %s (%s%%)
- Users with sent messages: %s (%s%%)
- Avg sent messages per user: %s (%s%%)
*Active user = user with both a sent message and an action`

const markdownTemplate = `**Daily app report for %s**

Total active\* users: %s (%s%%)

_Feed_

- Users with actions: %s (%s%%)
- Viewed posts: %s (%s%%)
- Avg actions per user: %s (%s%%)
- CTR: %s (%s%%)

_Messages_

- Total messages: %s (%s%%)
- Users with sent messages: %s (%s%%)
- Avg sent messages per user: %s (%s%%)

\*Active user = user with both a sent message and an action
`

// Format renders the plain-text report sent to the chat.
func Format(d *Delta) string {
	return render(textTemplate, d)
}

// Markdown renders the same report as Markdown.
func Markdown(d *Delta) string {
	return render(markdownTemplate, d)
}

func render(tmpl string, d *Delta) string {
	return fmt.Sprintf(tmpl,
		d.Date.Format(dataset.ReportLayout),
		count(d.ActiveUsers.Current), FormatChange(d.ActiveUsers.Change),
		count(d.DAU.Current), FormatChange(d.DAU.Change),
		count(d.PostsViewed.Current), FormatChange(d.PostsViewed.Change),
		ratio(d.ActionsPerUser.Current), FormatChange(d.ActionsPerUser.Change),
		ratio(d.CTR.Current), FormatChange(d.CTR.Change),
		count(d.MessagesSent.Current), FormatChange(d.MessagesSent.Change),
		count(d.MessagingUsers.Current), FormatChange(d.MessagingUsers.Change),
		ratio(d.MessagesPerUser.Current), FormatChange(d.MessagesPerUser.Change),
	)
}

// FormatChange prints a percentage in its shortest form with at least one
// decimal: 10 -> "10.0", -3.25 -> "-3.25".
func FormatChange(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func count(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func ratio(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
