package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// IsPermanent сообщает, что Bot API отклонил запрос и повтор не поможет: чат не найден, бот заблокирован.
func IsPermanent(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
}

// RetryAfter возвращает паузу, которую Bot API попросил выдержать перед повтором, или 0.
func RetryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return 0
	}
	return time.Duration(apiErr.RetryAfter) * time.Second
}

// TelegramClient отправляет сообщения через Telegram Bot API.
type TelegramClient struct {
	api        *tgbotapi.BotAPI
	httpClient *http.Client
}

// NewTelegramClient создаёт клиент Bot API без запроса getMe: токен проверяется первой отправкой.
func NewTelegramClient(baseURL, token string, timeout time.Duration) *TelegramClient {
	api := &tgbotapi.BotAPI{Token: token, Buffer: 100}
	api.SetAPIEndpoint(strings.TrimRight(baseURL, "/") + "/bot%s/%s")
	return &TelegramClient{
		api:        api,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	const op = "telegram.SendMessage"

	api := *c.api
	api.Client = contextClient{ctx: ctx, client: c.httpClient}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("%s: %w", op, stripURL(err))
	}
	return nil
}

// stripURL убирает адрес запроса из транспортной ошибки: в пути лежит токен бота.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s sendMessage: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
