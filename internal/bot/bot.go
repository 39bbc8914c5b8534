package bot

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"fieldtrack/internal/attendance"
	"fieldtrack/internal/config"
	"fieldtrack/internal/db/models"
	"fieldtrack/internal/geo"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// AgentDirectory resolves agents to and from their Discord accounts.
type AgentDirectory interface {
	GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetAgentByDiscordID(ctx context.Context, discordID string) (*models.Agent, error)
}

// Attendance is the part of the attendance service the slash commands use.
type Attendance interface {
	CheckOut(ctx context.Context, agentID uuid.UUID, pos *geo.Point) (*models.Attendance, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]attendance.View, error)
}

type Bot struct {
	config     config.DiscordConfig
	agents     AgentDirectory
	attendance Attendance
	session    *discordgo.Session
	shutdownCh chan struct{}
	isShutdown bool
	mu         sync.Mutex
	wg         sync.WaitGroup
}

func New(cfg config.DiscordConfig, agents AgentDirectory) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages

	log.Printf("Bot intents: %d", session.Identify.Intents)

	return &Bot{
		config:     cfg,
		agents:     agents,
		session:    session,
		shutdownCh: make(chan struct{}),
	}, nil
}

// Attach connects the slash commands to the attendance service. The bot is
// built before the service because it doubles as the service's notifier.
func (b *Bot) Attach(svc Attendance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attendance = svc
}

func (b *Bot) service() Attendance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attendance
}

// Send delivers a notification to the agent's Discord DMs.
func (b *Bot) Send(ctx context.Context, n attendance.Notification) error {
	agent, err := b.agents.GetAgent(ctx, n.TargetID)
	if err != nil {
		return fmt.Errorf("error getting agent: %w", err)
	}
	if agent == nil || agent.DiscordID == "" {
		log.Println(formatLogMessage("", "No Discord account for agent "+n.TargetID.String(), "NOTIFY", ""))
		return nil
	}

	channel, err := b.session.UserChannelCreate(agent.DiscordID)
	if err != nil {
		return fmt.Errorf("error opening DM channel: %w", err)
	}
	if _, err := b.session.ChannelMessageSend(channel.ID, formatNotification(n)); err != nil {
		return fmt.Errorf("error sending DM: %w", err)
	}
	return nil
}

// Broadcast posts an attendance event to the configured events channel.
func (b *Bot) Broadcast(_ context.Context, event string, payload any) error {
	if b.config.EventsChannelID == "" {
		return nil
	}
	if _, err := b.session.ChannelMessageSend(b.config.EventsChannelID, formatEvent(event, payload)); err != nil {
		return fmt.Errorf("error broadcasting %s: %w", event, err)
	}
	return nil
}

// Helper function to register commands for a guild
func (b *Bot) registerGuildCommands(guildID string) error {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := b.registerGuildCommandsOnce(guildID)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("Attempt %d to register commands failed: %v", i+1, err)
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return fmt.Errorf("failed to register commands after %d attempts: %w", maxRetries, lastErr)
}

func (b *Bot) registerGuildCommandsOnce(guildID string) error {
	serverName := getServerName(b.session, guildID)
	log.Println(formatLogMessage(guildID, "Registering commands", "BOT", serverName))

	// Overwrite replaces the whole command set in one call.
	registered, err := b.session.ApplicationCommandBulkOverwrite(b.config.ClientID, guildID, commands)
	if err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	for _, cmd := range registered {
		log.Println(formatLogMessage(guildID, cmd.Name+": Registered command", "BOT", serverName))
	}
	return nil
}

// Start connects to Discord and blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	log.Println("Starting Discord bot...")

	// Keep trying to open session until successful
	for {
		if err := b.session.Open(); err != nil {
			log.Printf("Error opening Discord session: %v. Retrying in 5 seconds...", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		log.Printf("Session opened successfully (Session ID: %s)", b.session.State.SessionID)
		break
	}

	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type == discordgo.InteractionApplicationCommand {
			b.handleCommand(s, i)
		}
	})

	for _, guild := range b.session.State.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			log.Printf("Error registering commands for guild %s: %v", guild.ID, err)
		}
	}

	// Now add the guild create handler for future guilds
	b.session.AddHandler(b.handleGuildCreate)

	log.Println("Bot is now running.")

	<-ctx.Done()
	return b.Shutdown()
}

// Shutdown performs a graceful shutdown of the bot
func (b *Bot) Shutdown() error {
	// Ensure we only close the channel once
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return nil
	}
	b.isShutdown = true
	close(b.shutdownCh)
	b.mu.Unlock()

	log.Println("Waiting for active handlers to complete...")
	b.wg.Wait()

	log.Println("Closing Discord session...")
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("error closing Discord session: %w", err)
	}

	log.Println("Discord bot stopped")
	return nil
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("Bot is ready! Connected to %d guilds", len(r.Guilds))
}

func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log.Println(formatLogMessage(g.ID, "Bot joined guild", "BOT", g.Name))

	if err := b.registerGuildCommands(g.ID); err != nil {
		log.Println(formatLogMessage(g.ID, fmt.Sprintf("Error registering commands: %v", err), "BOT", g.Name))
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	// Add defer to catch panics with stack trace
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Printf("Panic in command handler for user %s:\nError: %v\nStack Trace:\n%s",
				interactionUser(i).Username, r, string(buf[:n]))

			editResponse(s, i, "Error: An internal error occurred")
		}
	}()

	commandName := i.ApplicationCommandData().Name

	// Acknowledge first: the store round trips may exceed Discord's 3s limit.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Println(formatLogMessage(i.GuildID, "Error acknowledging interaction: "+err.Error(), "", ""))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch commandName {
	case "checkout":
		b.handleCheckout(ctx, s, i)
	case "status":
		b.handleStatus(ctx, s, i)
	default:
		log.Println(formatLogMessage(i.GuildID, "Unknown command: "+commandName, "", ""))
		editResponse(s, i, "Error: Unknown command")
	}
}
