// Package telegram talks to the Telegram Bot API and formats new-item
// notifications.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultAPIURL is the public Bot API root.
const DefaultAPIURL = "https://api.telegram.org"

const requestTimeout = 15 * time.Second

// ParseModeMarkdown is the legacy Markdown parse mode.
const ParseModeMarkdown = tgbotapi.ModeMarkdown

// allowedUpdates are the update kinds the bot handles.
var allowedUpdates = []string{"message", "callback_query"}

// Client adapts tgbotapi to context-aware calls. Every call runs on a copy
// of the library client whose HTTP requests carry the caller's context.
type Client struct {
	api     *tgbotapi.BotAPI
	token   string
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIURL points the client at another Bot API root, for tests or a
// self-hosted API server.
func WithAPIURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a client for the bot token. It does no I/O; use GetMe
// to validate the token.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		token:   token,
		baseURL: DefaultAPIURL,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	api := &tgbotapi.BotAPI{Token: token, Client: c.http, Buffer: 100}
	api.SetAPIEndpoint(c.baseURL + "/bot%s/%s")
	c.api = api
	return c, nil
}

// ctxDoer binds the library's requests to one context.
type ctxDoer struct {
	ctx context.Context
	hc  tgbotapi.HTTPClient
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.hc.Do(req.WithContext(d.ctx))
}

func (c *Client) with(ctx context.Context) *tgbotapi.BotAPI {
	api := *c.api
	api.Client = ctxDoer{ctx: ctx, hc: c.http}
	return &api
}

// wrap tags Bot API rejections with ErrAPI and keeps the token out of
// transport errors, whose messages include the request url.
func (c *Client) wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %w", ErrAPI, method, apiErr)
	}
	if strings.Contains(err.Error(), c.token) {
		return fmt.Errorf("%s request failed: %s", method, strings.ReplaceAll(err.Error(), c.token, "<token>"))
	}
	return fmt.Errorf("%s request failed: %w", method, err)
}

// GetMe returns the bot's own account. Used to validate the token.
func (c *Client) GetMe(ctx context.Context) (tgbotapi.User, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	u, err := c.with(ctx).GetMe()
	return u, c.wrap("getMe", err)
}

// SendMessage posts text to chatID and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts MessageOptions) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = opts.ParseMode
	if opts.ReplyMarkup != nil {
		msg.ReplyMarkup = opts.ReplyMarkup
	}
	sent, err := c.with(ctx).Send(msg)
	if err != nil {
		return 0, c.wrap("sendMessage", err)
	}
	return sent.MessageID, nil
}

// EditMessageText replaces the text of an existing message. Only an inline
// keyboard can be attached to an edited message.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts MessageOptions) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = opts.ParseMode
	if kb, ok := opts.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
		edit.ReplyMarkup = &kb
	}
	_, err := c.with(ctx).Request(edit)
	return c.wrap("editMessageText", err)
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string, showAlert bool) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	answer := tgbotapi.NewCallback(queryID, text)
	answer.ShowAlert = showAlert
	_, err := c.with(ctx).Request(answer)
	return c.wrap("answerCallbackQuery", err)
}

// GetUpdates long-polls for updates after offset, waiting up to timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]tgbotapi.Update, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+requestTimeout)
	defer cancel()

	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = int(timeout / time.Second)
	cfg.AllowedUpdates = allowedUpdates
	updates, err := c.with(ctx).GetUpdates(cfg)
	if err != nil {
		return nil, c.wrap("getUpdates", err)
	}
	return updates, nil
}
