// Package notifier is the push channel of the dialogue engine. Dispatch is
// fire-and-forget: a failed send is a boolean false, never an error, and the
// engine does not retry.
package notifier

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// Dispatcher delivers one push notification to one recipient. Must not
// panic or return an error; failure is reported as false.
type Dispatcher interface {
	Send(recipientID string, title string, body string, deepLink string) bool
}

// DeepLink builds the web-app link embedded in pushes:
// <base>/dialogues/<thread-key>.
func DeepLink(baseURL, threadKey string) string {
	return fmt.Sprintf("%s/dialogues/%s", strings.TrimRight(baseURL, "/"), threadKey)
}

const embedColor = 0x2b2d31

// DiscordDispatcher pushes through Discord DMs.
type DiscordDispatcher struct {
	client      bot.Client
	mu          sync.RWMutex
	initialized bool
}

func NewDiscordDispatcher(client bot.Client) *DiscordDispatcher {
	return &DiscordDispatcher{
		client:      client,
		initialized: client != nil,
	}
}

func (d *DiscordDispatcher) SetClient(client bot.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = client
	d.initialized = true
}

func (d *DiscordDispatcher) Send(recipientID string, title string, body string, deepLink string) bool {
	d.mu.RLock()
	client := d.client
	initialized := d.initialized
	d.mu.RUnlock()

	if !initialized || client == nil {
		slog.Error("Dispatcher not initialized, dropping push",
			slog.String("recipient_id", recipientID))
		return false
	}

	id, err := snowflake.Parse(recipientID)
	if err != nil {
		slog.Error("Invalid push recipient id",
			slog.String("recipient_id", recipientID),
			slog.String("error", err.Error()))
		return false
	}

	dmChannel, err := client.Rest().CreateDMChannel(id)
	if err != nil {
		slog.Error("Failed to create DM channel",
			slog.String("recipient_id", recipientID),
			slog.String("error", err.Error()))
		return false
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(body).
		SetColor(embedColor)
	if deepLink != "" {
		embed.SetURL(deepLink)
	}

	_, err = client.Rest().CreateMessage(dmChannel.ID(), discord.MessageCreate{
		Embeds: []discord.Embed{embed.Build()},
	})
	if err != nil {
		slog.Error("Failed to send push",
			slog.String("recipient_id", recipientID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// LogDispatcher logs pushes instead of sending them. Used for dry runs and
// as the test double.
type LogDispatcher struct{}

func (LogDispatcher) Send(recipientID string, title string, body string, deepLink string) bool {
	slog.Info("Push (dry run)",
		slog.String("recipient_id", recipientID),
		slog.String("title", title),
		slog.String("deep_link", deepLink))
	return true
}
