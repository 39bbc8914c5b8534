package bot

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"fieldtrack/internal/attendance"

	"github.com/bwmarrin/discordgo"
)

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatTime formats a time using the agent's timezone
func formatTime(t time.Time, timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

func formatNotification(n attendance.Notification) string {
	if n.Title == "" {
		return n.Message
	}
	return fmt.Sprintf("**%s**\n%s", n.Title, n.Message)
}

// formatEvent renders an event payload as a single line with sorted keys.
func formatEvent(event string, payload any) string {
	fields, ok := payload.(map[string]any)
	if !ok {
		return fmt.Sprintf("`%s` %v", event, payload)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339)
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("`%s` %s", event, strings.Join(parts, " "))
}

// formatLogMessage builds a consistent log line for guild-scoped events.
func formatLogMessage(guildID, message, actor, serverName string) string {
	var b strings.Builder
	if actor != "" {
		b.WriteString("[" + actor + "] ")
	}
	if guildID != "" {
		b.WriteString("guild=" + guildID)
		if serverName != "" {
			b.WriteString(" (" + serverName + ")")
		}
		b.WriteString(" ")
	}
	b.WriteString(message)
	return b.String()
}

func getServerName(s *discordgo.Session, guildID string) string {
	if guildID == "" {
		return ""
	}
	if g, err := s.State.Guild(guildID); err == nil {
		return g.Name
	}
	return ""
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{Username: "unknown"}
}

// editResponse fills in the deferred ephemeral reply.
func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &msg}); err != nil {
		log.Printf("Error editing interaction response: %v", err)
	}
}

// logCommand logs command execution to the console
func logCommand(i *discordgo.InteractionCreate, commandName string) {
	log.Println(formatLogMessage(i.GuildID, "executed /"+commandName, interactionUser(i).Username, ""))
}

// Helper function to truncate strings that are too long
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatTable creates a Discord-friendly table with fixed-width columns
func formatTable(headers []string, rows [][]string) string {
	// Find the maximum width for each column
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var result strings.Builder

	// Write headers
	result.WriteString("```\n")
	for i, header := range headers {
		result.WriteString(fmt.Sprintf("%-*s", widths[i]+2, header))
	}
	result.WriteString("\n")

	// Write separator
	for _, width := range widths {
		result.WriteString(strings.Repeat("-", width+2))
	}
	result.WriteString("\n")

	// Write rows
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			result.WriteString(fmt.Sprintf("%-*s", widths[i]+2, cell))
		}
		result.WriteString("\n")
	}
	result.WriteString("```")

	return result.String()
}
