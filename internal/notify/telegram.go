package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"order_pacer/internal/config"
)

var ErrNoChat = errors.New("telegram chat id not configured")

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	return &Telegram{
		client: c,
		token:  strings.TrimSpace(cfg.BotToken),
		chatID: strings.TrimSpace(cfg.ChatID),
	}
}

func (t *Telegram) Enabled() bool {
	return t != nil && t.token != ""
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	return t.Send(ctx, t.chatID, text, "")
}

type sendMessageReq struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResp struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send delivers text to chatID. parseMode is passed through when non-empty
// ("Markdown" for status reports).
func (t *Telegram) Send(ctx context.Context, chatID, text, parseMode string) error {
	if !t.Enabled() {
		return nil
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return ErrNoChat
	}
	var out apiResp
	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.token).
		SetBody(sendMessageReq{ChatID: chatID, Text: text, ParseMode: parseMode}).
		SetResult(&out).
		SetError(&out).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.IsError() || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = resp.Status()
		}
		return fmt.Errorf("telegram send: %s", desc)
	}
	return nil
}
