package command

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/illmade-knight/away-tracker/pkg/away"
)

// TimeLayout is how instants are shown to users.
const TimeLayout = "2006-01-02 15:04 UTC"

// TextObject is a Slack text composition object.
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block is a Slack section block.
type Block struct {
	Type string      `json:"type"`
	Text *TextObject `json:"text,omitempty"`
}

// Response is the JSON body returned to the slash command.
type Response struct {
	ResponseType string  `json:"response_type,omitempty"`
	Text         string  `json:"text"`
	Blocks       []Block `json:"blocks,omitempty"`
}

func textResponse(text string) Response {
	return Response{ResponseType: "ephemeral", Text: text}
}

func section(markdown string) Block {
	return Block{Type: "section", Text: &TextObject{Type: "mrkdwn", Text: markdown}}
}

// FormatTime renders an instant for display.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

// RenderList shows one section per record.
func RenderList(records []away.Record) Response {
	blocks := make([]Block, len(records))
	for i, r := range records {
		blocks[i] = section(strings.Join([]string{
			fmt.Sprintf("*%s* (afk %s)", mention(r.UserID), r.Text),
			"From: " + FormatTime(r.StartDatetime),
			"Upto: " + FormatTime(r.EndDatetime),
		}, "\n"))
	}
	return Response{
		ResponseType: "in_channel",
		Text:         fmt.Sprintf("%d AFK %s", len(records), plural(len(records), "record")),
		Blocks:       blocks,
	}
}

// RenderTable lays the records out as fixed-width columns in a code block.
func RenderTable(records []away.Record) Response {
	headers := [3]string{"User", "AFK Start", "AFK End"}
	rows := make([][3]string, len(records))
	var widths [3]int
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for i, r := range records {
		rows[i] = [3]string{mention(r.UserID), FormatTime(r.StartDatetime), FormatTime(r.EndDatetime)}
		for c, cell := range rows[i] {
			widths[c] = max(widths[c], utf8.RuneCountInString(cell))
		}
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, joinRow(headers, widths, center))
	lines = append(lines, joinRow([3]string{}, widths, func(_ string, w int) string {
		return strings.Repeat("-", w)
	}))
	for _, row := range rows {
		lines = append(lines, joinRow(row, widths, ljust))
	}

	table := "```" + strings.Join(lines, "\n") + "```"
	return Response{
		ResponseType: "in_channel",
		Text:         table,
		Blocks:       []Block{section(table)},
	}
}

func joinRow(cells [3]string, widths [3]int, pad func(string, int) string) string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = pad(c, widths[i])
	}
	return strings.Join(out, " | ")
}

func center(s string, width int) string {
	gap := width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	left := gap / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
}

func ljust(s string, width int) string {
	gap := width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
