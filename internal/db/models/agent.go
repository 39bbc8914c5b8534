package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a field worker. DiscordID links the agent to the chat account used
// for direct notifications.
type Agent struct {
	ID        uuid.UUID `db:"id" json:"id" yaml:"id"`
	DiscordID string    `db:"discord_id" json:"discordId" yaml:"discord_id"`
	Username  string    `db:"username" json:"username" yaml:"username"`
	Timezone  string    `db:"timezone" json:"timezone" yaml:"timezone"`
	CreatedAt time.Time `db:"created_at" json:"createdAt" yaml:"created_at"`
}
