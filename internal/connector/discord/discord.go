// Package discord implements connector.Connector over the Discord
// gateway, grounded on the teacher's internal/channels/discord
// adapter: a *discordgo.Session registers a MessageCreate handler that
// pushes inbound messages into a buffered channel, narrowed from the
// teacher's full reaction/thread/attachment handling to plain text
// send/edit/poll.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/sentinel/internal/connector"
)

// Config configures a Connector.
type Config struct {
	Token string

	// PollTimeout bounds how long PollMessages waits for at least one
	// message. Default: 25s.
	PollTimeout time.Duration
}

// Connector implements connector.Connector for Discord.
type Connector struct {
	session *discordgo.Session
	inbox   chan connector.IncomingMessage
	timeout time.Duration
	chunker *connector.Chunker
}

// New opens a Discord gateway session and registers the handler that
// feeds PollMessages.
func New(cfg Config) (*Connector, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 25 * time.Second
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	c := &Connector{
		session: session,
		inbox:   make(chan connector.IncomingMessage, 100),
		timeout: cfg.PollTimeout,
		chunker: connector.NewChunker(4096),
	}
	session.AddHandler(c.handleMessageCreate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return c, nil
}

func (c *Connector) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	msg := connector.IncomingMessage{
		ChatID:     m.ChannelID,
		UserID:     m.Author.ID,
		Text:       m.Content,
		ReceivedAt: time.Now(),
	}
	select {
	case c.inbox <- msg:
	default:
		// Inbox full: drop rather than block the gateway's event loop.
	}
}

// PlatformName returns "discord".
func (c *Connector) PlatformName() string { return "discord" }

// PollMessages drains whatever arrived since the last call, waiting up
// to the configured timeout for at least one message.
func (c *Connector) PollMessages(ctx context.Context) ([]connector.IncomingMessage, error) {
	var msgs []connector.IncomingMessage

	select {
	case msg := <-c.inbox:
		msgs = append(msgs, msg)
	case <-time.After(c.timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case msg := <-c.inbox:
			msgs = append(msgs, msg)
		default:
			return msgs, nil
		}
	}
}

// SendMessage sends text to channelID, chunking if it exceeds
// Discord's 4096-character limit.
func (c *Connector) SendMessage(ctx context.Context, chatID, text string) error {
	for _, chunk := range c.chunker.Chunk(text) {
		if _, err := c.session.ChannelMessageSend(chatID, chunk); err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
	}
	return nil
}

// SendMessageGetID sends text and returns the first chunk's message
// id, for later edits.
func (c *Connector) SendMessageGetID(ctx context.Context, chatID, text string) (string, error) {
	chunks := c.chunker.Chunk(text)
	if len(chunks) == 0 {
		return "", nil
	}

	sent, err := c.session.ChannelMessageSend(chatID, chunks[0])
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if _, err := c.session.ChannelMessageSend(chatID, chunk); err != nil {
			return "", fmt.Errorf("discord: send message: %w", err)
		}
	}
	return sent.ID, nil
}

// EditMessageText replaces the text of a previously sent message.
func (c *Connector) EditMessageText(ctx context.Context, chatID, messageID, text string) error {
	if _, err := c.session.ChannelMessageEdit(chatID, messageID, text); err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	return nil
}
