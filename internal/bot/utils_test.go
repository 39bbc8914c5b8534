package bot

import (
	"strings"
	"testing"
	"time"

	"fieldtrack/internal/attendance"
	"fieldtrack/internal/db/models"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 30*time.Minute, "2h 30m 0s"},
		{1499 * time.Millisecond, "1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimeFallsBackToUTC(t *testing.T) {
	ts := time.Date(2026, 6, 1, 4, 0, 0, 0, time.UTC)
	if got := formatTime(ts, "Europe/Zurich"); got != "2026-06-01 06:00" {
		t.Errorf("Zurich: got %q", got)
	}
	if got := formatTime(ts, "Not/AZone"); got != "2026-06-01 04:00" {
		t.Errorf("invalid zone: got %q", got)
	}
	if got := formatTime(ts, ""); got != "2026-06-01 04:00" {
		t.Errorf("empty zone: got %q", got)
	}
}

func TestFormatNotification(t *testing.T) {
	n := attendance.Notification{Title: "Session closed automatically", Message: "You left the site."}
	if got := formatNotification(n); got != "**Session closed automatically**\nYou left the site." {
		t.Errorf("got %q", got)
	}
	if got := formatNotification(attendance.Notification{Message: "plain"}); got != "plain" {
		t.Errorf("untitled: got %q", got)
	}
}

func TestFormatEventSortsKeys(t *testing.T) {
	at := time.Date(2026, 6, 1, 6, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	got := formatEvent("attendance.checked_in", map[string]any{
		"site":  "geneva",
		"agent": "mara",
		"at":    at,
	})
	want := "`attendance.checked_in` agent=mara at=2026-06-01T04:00:00Z site=geneva"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := formatEvent("ping", 3); got != "`ping` 3" {
		t.Errorf("non-map payload: got %q", got)
	}
}

func TestFormatLogMessage(t *testing.T) {
	if got := formatLogMessage("42", "Registering commands", "BOT", "Depot"); got != "[BOT] guild=42 (Depot) Registering commands" {
		t.Errorf("got %q", got)
	}
	if got := formatLogMessage("", "hello", "", ""); got != "hello" {
		t.Errorf("bare: got %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateString("abcdefghij", 8); got != "abcde..." {
		t.Errorf("got %q", got)
	}
	if got := truncateString("abcdef", 2); got != "ab" {
		t.Errorf("got %q", got)
	}
}

func TestFormatTableAlignsColumns(t *testing.T) {
	got := formatTable([]string{"A", "LONG"}, [][]string{{"xyz", "1"}, {"q", "22", "ignored"}})
	lines := strings.Split(got, "\n")
	if lines[0] != "```" || lines[len(lines)-1] != "```" {
		t.Fatalf("table not fenced: %q", got)
	}
	if lines[1] != "A    LONG  " {
		t.Errorf("header = %q", lines[1])
	}
	if lines[2] != strings.Repeat("-", 11) {
		t.Errorf("separator = %q", lines[2])
	}
	if lines[3] != "xyz  1     " || lines[4] != "q    22    " {
		t.Errorf("rows = %q, %q", lines[3], lines[4])
	}
}

func TestFormatStatus(t *testing.T) {
	in := time.Date(2026, 6, 1, 4, 0, 0, 0, time.UTC)
	left := in.Add(90 * time.Minute)
	views := []attendance.View{{
		Attendance: &models.Attendance{
			SiteID:       uuid.MustParse("8a7b6c5d-4e3f-4a1b-9c2d-1e0f2a3b4c5d"),
			CheckInTime:  &in,
			OutsideSince: &left,
			Status:       models.AttendancePending,
		},
	}}
	got := formatStatus(views, "Europe/Zurich", in.Add(2*time.Hour))
	for _, want := range []string{"8a7b6...", "2026-06-01 06:00", "2h 0m 0s", "left at 2026-06-01 07:30"} {
		if !strings.Contains(got, want) {
			t.Errorf("status table missing %q:\n%s", want, got)
		}
	}
}

func TestInteractionUser(t *testing.T) {
	member := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "1", Username: "guild"}},
		User:   &discordgo.User{ID: "2", Username: "dm"},
	}}
	if got := interactionUser(member); got.ID != "1" {
		t.Errorf("member user not preferred: %+v", got)
	}
	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "2"}}}
	if got := interactionUser(dm); got.ID != "2" {
		t.Errorf("dm user = %+v", got)
	}
	none := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	if got := interactionUser(none); got.ID != "" || got.Username != "unknown" {
		t.Errorf("fallback = %+v", got)
	}
}
