// Package telegram implements connector.Connector over the Telegram
// Bot API, grounded on the teacher's internal/channels/telegram
// adapter: a long-polling *bot.Bot pushes inbound updates into a
// buffered channel from a registered handler, and PollMessages drains
// that channel rather than exposing a callback — the spec's
// poll_messages/send_message/... contract is pull-based, the
// go-telegram/bot library's is push-based, and this is the adapter
// between the two.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/haasonsaas/sentinel/internal/connector"
)

// Config configures a Connector.
type Config struct {
	Token string

	// LongPollTimeout bounds how long PollMessages waits for a new
	// message before returning an empty result. Default: 25s.
	LongPollTimeout time.Duration
}

// Connector implements connector.Connector for Telegram.
type Connector struct {
	bot     *tgbot.Bot
	inbox   chan connector.IncomingMessage
	timeout time.Duration
	chunker *connector.Chunker
}

// New creates and starts a Telegram connector: it registers a text
// message handler that pushes every inbound message onto an internal
// channel, then starts the bot's long-polling loop in the background.
func New(ctx context.Context, cfg Config) (*Connector, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.LongPollTimeout <= 0 {
		cfg.LongPollTimeout = 25 * time.Second
	}

	c := &Connector{
		inbox:   make(chan connector.IncomingMessage, 100),
		timeout: cfg.LongPollTimeout,
		chunker: connector.NewChunker(4096),
	}

	b, err := tgbot.New(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	c.bot = b

	b.RegisterHandler(tgbot.HandlerTypeMessageText, "", tgbot.MatchTypePrefix, func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		c.handleUpdate(update)
	})

	go b.Start(ctx)
	return c, nil
}

func (c *Connector) handleUpdate(update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := connector.IncomingMessage{
		ChatID:     strconv.FormatInt(update.Message.Chat.ID, 10),
		Text:       update.Message.Text,
		ReceivedAt: time.Now(),
	}
	if update.Message.From != nil {
		msg.UserID = strconv.FormatInt(update.Message.From.ID, 10)
	}
	select {
	case c.inbox <- msg:
	default:
		// Inbox full: drop rather than block the bot's update loop.
	}
}

// PlatformName returns "telegram".
func (c *Connector) PlatformName() string { return "telegram" }

// PollMessages drains whatever arrived since the last call, waiting up
// to the configured long-poll timeout for at least one message.
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

// SendMessage sends text to chatID, chunking if it exceeds Telegram's
// 4096-character limit.
func (c *Connector) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	for _, chunk := range c.chunker.Chunk(text) {
		if _, err := c.bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: id, Text: chunk}); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}
	return nil
}

// SendMessageGetID sends text and returns the sent message's id. Only
// the first chunk's id is returned when the text is chunked — edits
// target that first message.
func (c *Connector) SendMessageGetID(ctx context.Context, chatID, text string) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	chunks := c.chunker.Chunk(text)
	if len(chunks) == 0 {
		return "", nil
	}

	sent, err := c.bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: id, Text: chunks[0]})
	if err != nil {
		return "", fmt.Errorf("telegram: send message: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if _, err := c.bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: id, Text: chunk}); err != nil {
			return "", fmt.Errorf("telegram: send message: %w", err)
		}
	}
	return strconv.Itoa(sent.ID), nil
}

// EditMessageText replaces the text of a previously sent message.
func (c *Connector) EditMessageText(ctx context.Context, chatID, messageID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", messageID, err)
	}
	_, err = c.bot.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:    id,
		MessageID: msgID,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("telegram: edit message: %w", err)
	}
	return nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}
