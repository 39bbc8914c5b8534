package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fieldtrack/internal/attendance"
	"fieldtrack/internal/db/models"

	"github.com/bwmarrin/discordgo"
)

var (
	commands = []*discordgo.ApplicationCommand{
		{
			Name:        "checkout",
			Description: "Close your open attendance session",
		},
		{
			Name:        "status",
			Description: "Show your open attendance sessions",
		},
	}
)

func (b *Bot) handleCheckout(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	logCommand(i, "checkout")

	agent, ok := b.agentFromInteraction(ctx, s, i)
	if !ok {
		return
	}
	svc := b.service()
	if svc == nil {
		editResponse(s, i, "Error: Attendance service is not available")
		return
	}

	rec, err := svc.CheckOut(ctx, agent.ID, nil)
	if errors.Is(err, attendance.ErrNoOpenSession) {
		editResponse(s, i, "Error: You have no open attendance session")
		return
	}
	if err != nil {
		log.Println(formatLogMessage(i.GuildID, "CheckOut failed: "+err.Error(), agent.Username, ""))
		editResponse(s, i, "Error checking out: "+err.Error())
		return
	}

	msg := "Checked out."
	if rec.CheckInTime != nil && rec.CheckOutTime != nil {
		msg += "\nTime on site: " + formatDuration(rec.CheckOutTime.Sub(*rec.CheckInTime))
	}
	editResponse(s, i, msg)
}

func (b *Bot) handleStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	logCommand(i, "status")

	agent, ok := b.agentFromInteraction(ctx, s, i)
	if !ok {
		return
	}
	svc := b.service()
	if svc == nil {
		editResponse(s, i, "Error: Attendance service is not available")
		return
	}

	views, err := svc.List(ctx, models.AttendanceFilter{
		AgentID: &agent.ID,
		Status:  models.AttendancePending,
	})
	if err != nil {
		editResponse(s, i, "Error retrieving sessions: "+err.Error())
		return
	}
	if len(views) == 0 {
		editResponse(s, i, "You have no open attendance session.")
		return
	}
	editResponse(s, i, formatStatus(views, agent.Timezone, time.Now()))
}

// formatStatus renders open sessions as a table.
func formatStatus(views []attendance.View, timezone string, now time.Time) string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		started := "-"
		elapsed := "-"
		if v.CheckInTime != nil {
			started = formatTime(*v.CheckInTime, timezone)
			elapsed = formatDuration(now.Sub(*v.CheckInTime))
		}
		onSite := "yes"
		if v.OutsideSince != nil {
			onSite = "left at " + formatTime(*v.OutsideSince, timezone)
		}
		rows = append(rows, []string{
			truncateString(v.SiteID.String(), 8),
			started,
			elapsed,
			onSite,
		})
	}
	return formatTable([]string{"SITE", "CHECK-IN", "ELAPSED", "ON SITE"}, rows)
}

// agentFromInteraction resolves the Discord user to a registered agent.
func (b *Bot) agentFromInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) (*models.Agent, bool) {
	user := interactionUser(i)
	if user.ID == "" {
		editResponse(s, i, "Error: could not get user information from interaction")
		return nil, false
	}
	agent, err := b.agents.GetAgentByDiscordID(ctx, user.ID)
	if err != nil {
		editResponse(s, i, "Error getting agent: "+err.Error())
		return nil, false
	}
	if agent == nil {
		editResponse(s, i, fmt.Sprintf("Error: No agent is linked to %s", user.Username))
		return nil, false
	}
	return agent, true
}
