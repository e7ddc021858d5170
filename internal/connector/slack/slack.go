// Package slack implements connector.Connector over Slack Socket Mode,
// grounded on the teacher's internal/channels/slack adapter: a
// *socketmode.Client consumes events off its own Events channel in a
// dedicated goroutine, type-switching on EventTypeEventsAPI to reach
// *slackevents.MessageEvent, narrowed from the teacher's DM/mention/
// thread-reply filtering to every non-bot message in a channel the bot
// is a member of.
package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haasonsaas/sentinel/internal/connector"
)

// Config configures a Connector.
type Config struct {
	BotToken string // xoxb- token for API calls
	AppToken string // xapp- token for Socket Mode

	// PollTimeout bounds how long PollMessages waits for at least one
	// message. Default: 25s.
	PollTimeout time.Duration
}

// Connector implements connector.Connector for Slack.
type Connector struct {
	client       *slack.Client
	socketClient *socketmode.Client
	botUserID    string
	inbox        chan connector.IncomingMessage
	timeout      time.Duration
	chunker      *connector.Chunker
}

// New authenticates against Slack, opens a Socket Mode connection, and
// starts the goroutines that feed PollMessages.
func New(ctx context.Context, cfg Config) (*Connector, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: bot token and app token are required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 25 * time.Second
	}

	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	socketClient := socketmode.New(client, socketmode.OptionDebug(false))

	authResp, err := client.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: authenticate: %w", err)
	}

	c := &Connector{
		client:       client,
		socketClient: socketClient,
		botUserID:    authResp.UserID,
		inbox:        make(chan connector.IncomingMessage, 100),
		timeout:      cfg.PollTimeout,
		chunker:      connector.NewChunker(4000),
	}

	go c.handleEvents(ctx)
	go socketClient.Run()

	return c, nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.socketClient.Events:
			if !ok {
				return
			}
			if event.Type == socketmode.EventTypeEventsAPI {
				c.handleEventsAPI(event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if event.Request != nil {
		c.socketClient.Ack(*event.Request)
	}

	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		c.push(ev.Channel, ev.User, ev.Text)
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.User == c.botUserID {
			return
		}
		if ev.SubType != "" && ev.SubType != "file_share" {
			return
		}
		c.push(ev.Channel, ev.User, ev.Text)
	}
}

func (c *Connector) push(channel, user, text string) {
	if text == "" {
		return
	}
	msg := connector.IncomingMessage{
		ChatID:     channel,
		UserID:     user,
		Text:       text,
		ReceivedAt: time.Now(),
	}
	select {
	case c.inbox <- msg:
	default:
		// Inbox full: drop rather than block the event-consumer goroutine.
	}
}

// PlatformName returns "slack".
func (c *Connector) PlatformName() string { return "slack" }

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

// SendMessage posts text to channelID, chunking if it exceeds Slack's
// practical message size limit.
func (c *Connector) SendMessage(ctx context.Context, chatID, text string) error {
	for _, chunk := range c.chunker.Chunk(text) {
		if _, _, err := c.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(chunk, false)); err != nil {
			return fmt.Errorf("slack: post message: %w", err)
		}
	}
	return nil
}

// SendMessageGetID posts text and returns the first chunk's timestamp,
// which Slack uses in place of a message id for later edits.
func (c *Connector) SendMessageGetID(ctx context.Context, chatID, text string) (string, error) {
	chunks := c.chunker.Chunk(text)
	if len(chunks) == 0 {
		return "", nil
	}

	_, timestamp, err := c.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(chunks[0], false))
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if _, _, err := c.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(chunk, false)); err != nil {
			return "", fmt.Errorf("slack: post message: %w", err)
		}
	}
	return timestamp, nil
}

// EditMessageText replaces the text of a previously sent message,
// addressed by its channel and timestamp.
func (c *Connector) EditMessageText(ctx context.Context, chatID, messageID, text string) error {
	if _, _, _, err := c.client.UpdateMessageContext(ctx, chatID, messageID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: update message: %w", err)
	}
	return nil
}
