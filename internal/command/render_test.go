package command_test

import (
	"strings"
	"testing"
	"time"

	"github.com/illmade-knight/away-tracker/internal/command"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRecord(user, text string, start time.Time, d time.Duration) away.Record {
	return away.Record{
		ID:            user,
		UserID:        user,
		Text:          text,
		StartDatetime: start,
		EndDatetime:   start.Add(d),
		Status:        away.StatusActive,
	}
}

func TestRenderList(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC)
	records := []away.Record{fixedRecord("U1", "2h", start, 2*time.Hour)}

	resp := command.RenderList(records)

	require.Len(t, resp.Blocks, 1)
	assert.Equal(t, "section", resp.Blocks[0].Type)
	assert.Equal(t, "mrkdwn", resp.Blocks[0].Text.Type)
	assert.Equal(t, "*<@U1>* (afk 2h)\nFrom: 2024-05-01 09:05 UTC\nUpto: 2024-05-01 11:05 UTC", resp.Blocks[0].Text.Text)
	assert.Equal(t, "1 AFK record", resp.Text)
}

func TestRenderTable(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC)
	records := []away.Record{
		fixedRecord("U1", "", start, time.Hour),
		fixedRecord("ULONGERNAME", "", start, 2*time.Hour),
	}

	resp := command.RenderTable(records)

	require.True(t, strings.HasPrefix(resp.Text, "```"))
	require.True(t, strings.HasSuffix(resp.Text, "```"))
	lines := strings.Split(strings.Trim(resp.Text, "`"), "\n")
	require.Len(t, lines, 4)

	sp := strings.Repeat
	assert.Equal(t, sp(" ", 5)+"User"+sp(" ", 5)+" | "+sp(" ", 5)+"AFK Start"+sp(" ", 6)+" | "+sp(" ", 6)+"AFK End"+sp(" ", 7), lines[0])
	assert.Equal(t, sp("-", 14)+" | "+sp("-", 20)+" | "+sp("-", 20), lines[1])
	assert.Equal(t, "<@U1>"+sp(" ", 9)+" | 2024-05-01 09:05 UTC | 2024-05-01 10:05 UTC", lines[2])
	assert.Equal(t, "<@ULONGERNAME> | 2024-05-01 09:05 UTC | 2024-05-01 11:05 UTC", lines[3])

	for _, line := range lines {
		assert.Equal(t, len(lines[1]), len(line))
	}
}
