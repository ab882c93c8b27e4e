// Package telegram adapts the Telegram Bot API to the messenger capability
// set and delivers operator keyboard presses.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/sweeney/asterisk-callback-bot/internal/messenger"
	"github.com/sweeney/asterisk-callback-bot/internal/render"
)

// Callback is an operator pressing an inline keyboard button.
type Callback struct {
	ID   string
	Ref  messenger.MessageRef
	Data string
	// Text is the message text as the operator currently sees it.
	Text string
}

var _ messenger.Messenger = (*Bot)(nil)

// pollGrace is how long a long poll may outlast the timeout it asked for.
const pollGrace = 30 * time.Second

// Bot talks to the Bot API. Sends and edits go through api; long polls use
// poller, whose HTTP client allows for the poll timeout.
type Bot struct {
	api         *tgbotapi.BotAPI
	poller      *tgbotapi.BotAPI
	pollTimeout int
	log         *zap.Logger
}

type options struct {
	endpoint       string
	client         tgbotapi.HTTPClient
	requestTimeout time.Duration
	pollTimeout    int
	log            *zap.Logger
}

// Option configures a Bot.
type Option func(*options)

// WithEndpoint overrides the API URL format, e.g. for a local Bot API server.
// It must contain two %s verbs: token and method.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for all API calls, polls
// included. The request timeout is then up to the client.
func WithHTTPClient(c tgbotapi.HTTPClient) Option {
	return func(o *options) { o.client = c }
}

// WithRequestTimeout bounds every API call other than the long poll. The
// Bot API client takes no context, so this is what cuts a hung request
// short.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithPollTimeout sets the long-poll timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(o *options) { o.pollTimeout = seconds }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// New connects to the Bot API and verifies the token.
func New(token string, opts ...Option) (*Bot, error) {
	o := options{
		endpoint:       tgbotapi.APIEndpoint,
		requestTimeout: 15 * time.Second,
		pollTimeout:    60,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	requests, polls := o.client, o.client
	if o.client == nil {
		requests = &http.Client{Timeout: o.requestTimeout}
		polls = &http.Client{Timeout: time.Duration(o.pollTimeout)*time.Second + pollGrace}
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, requests)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	o.log.Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	poller := *api
	poller.Client = polls

	return &Bot{api: api, poller: &poller, pollTimeout: o.pollTimeout, log: o.log}, nil
}

// Username returns the bot's username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

func (b *Bot) Send(ctx context.Context, chatID int64, text string, kb *render.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = markup(kb)
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("sending message to %d: %w", chatID, err)
	}
	return nil
}

// EditText replaces the message text. A nil keyboard removes the inline
// keyboard.
func (b *Bot) EditText(ctx context.Context, ref messenger.MessageRef, text string, kb *render.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	if kb != nil {
		m := markup(kb)
		edit.ReplyMarkup = &m
	}
	if _, err := b.api.Request(edit); err != nil {
		return fmt.Errorf("editing message %s: %w", ref, err)
	}
	return nil
}

func (b *Bot) EditKeyboard(ctx context.Context, ref messenger.MessageRef, kb *render.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if kb != nil {
		m = markup(kb)
	}
	if _, err := b.api.Request(tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, m)); err != nil {
		return fmt.Errorf("editing keyboard of %s: %w", ref, err)
	}
	return nil
}

// Answer acknowledges a callback query; a non-empty text pops up as a toast.
func (b *Bot) Answer(ctx context.Context, interactionID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(interactionID, text)); err != nil {
		return fmt.Errorf("answering callback %s: %w", interactionID, err)
	}
	return nil
}

// Poll long-polls for callback queries and passes each to handle until ctx
// is cancelled. Poll must not be called more than once per Bot.
func (b *Bot) Poll(ctx context.Context, handle func(Callback)) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	u.AllowedUpdates = []string{"callback_query"}

	updates := b.poller.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.poller.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			cb, ok := toCallback(upd)
			if !ok {
				b.log.Debug("skipping update", zap.Int("update_id", upd.UpdateID))
				continue
			}
			handle(cb)
		}
	}
}

// Callbacks on inline-mode messages carry no Message and cannot be edited by
// chat id, so they are dropped.
func toCallback(upd tgbotapi.Update) (Callback, bool) {
	q := upd.CallbackQuery
	if q == nil || q.Message == nil || q.Message.Chat == nil {
		return Callback{}, false
	}
	return Callback{
		ID:   q.ID,
		Ref:  messenger.MessageRef{ChatID: q.Message.Chat.ID, MessageID: q.Message.MessageID},
		Data: q.Data,
		Text: q.Message.Text,
	}, true
}

func markup(kb *render.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, btn := range r {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		rows = append(rows, row)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}
