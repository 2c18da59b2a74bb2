// Package telegram wraps the telebot long-poll client behind the small send
// surface the rest of the bot uses.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

// MaxMessageLength is Telegram's hard cap on a single text message. The
// message builder treats it as an external constraint when packing chunks.
const MaxMessageLength = 4096

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{bot: b, log: log.With(logx.String("comp", "telegram"))}, nil
}

// Bot exposes the underlying telebot instance for handler registration.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start begins long polling and blocks until Stop is called.
func (a *Adapter) Start() {
	a.log.Info("polling started")
	a.bot.Start()
	a.log.Info("polling stopped")
}

func (a *Adapter) Stop() {
	a.bot.Stop()
}

// SendText delivers one message to a chat. The text must already fit within
// MaxMessageLength; the builder owns chunking. telebot has no context plumbing,
// so cancellation is only checked before the call.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}
