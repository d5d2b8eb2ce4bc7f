// Package telegram delivers broadcast payloads through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

// Telegram rejects photo captions longer than this.
const captionLimit = 1024

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Transport struct {
	bot       sender
	parseMode tele.ParseMode

	// Split deliveries whose photo went out but whose text did not.
	mu        sync.Mutex
	photoOnly map[splitKey]struct{}
}

type splitKey struct {
	chat  int64
	image string
	text  string
}

// New builds an offline bot: no getMe call and no poller, we only send.
func New(cfg environments.TelegramConfig, timeout time.Duration) (*Transport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Transport{bot: b, parseMode: tele.ParseMode(cfg.ParseMode)}, nil
}

// Send delivers payload to the chat identified by contactID. Flood control
// replies come back as *domain.RateLimitError.
func (t *Transport) Send(ctx context.Context, contactID string, payload domain.Payload) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(contactID), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q", contactID)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// telebot has no context support; the HTTP client timeout bounds the goroutine.
	done := make(chan error, 1)
	go func() { done <- t.deliver(&tele.Chat{ID: chatID}, payload) }()

	select {
	case err := <-done:
		return classify(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) deliver(chat *tele.Chat, payload domain.Payload) error {
	opts := &tele.SendOptions{ParseMode: t.parseMode}
	if markup := buttonsMarkup(payload.Buttons); markup != nil {
		opts.ReplyMarkup = markup
	}

	if payload.ImageURL == "" {
		_, err := t.bot.Send(chat, payload.Text, opts)
		return err
	}

	photo := &tele.Photo{File: tele.FromURL(payload.ImageURL)}
	if len([]rune(payload.Text)) <= captionLimit {
		photo.Caption = payload.Text
		_, err := t.bot.Send(chat, photo, opts)
		return err
	}

	// Long text: photo first, then the text carrying the buttons. A retry
	// after the text was flood limited resumes with the text.
	key := splitKey{chat: chat.ID, image: payload.ImageURL, text: payload.Text}
	if !t.photoDelivered(key) {
		if _, err := t.bot.Send(chat, photo, &tele.SendOptions{ParseMode: t.parseMode}); err != nil {
			return err
		}
	}

	_, err := t.bot.Send(chat, payload.Text, opts)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil && isFlood(err) {
		if t.photoOnly == nil {
			t.photoOnly = map[splitKey]struct{}{}
		}
		t.photoOnly[key] = struct{}{}
	} else {
		delete(t.photoOnly, key)
	}
	return err
}

func (t *Transport) photoDelivered(key splitKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.photoOnly[key]
	return ok
}

func isFlood(err error) bool {
	var rl *domain.RateLimitError
	return errors.As(classify(err), &rl)
}

func buttonsMarkup(buttons []domain.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, rm.Row(rm.URL(b.Label, b.URL)))
	}
	rm.Inline(rows...)
	return rm
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &domain.RateLimitError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second, Reason: "telegram flood control"}
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return &domain.RateLimitError{RetryAfter: time.Duration(floodPtr.RetryAfter) * time.Second, Reason: "telegram flood control"}
	}

	return fmt.Errorf("telegram rejected message: %w", err)
}
