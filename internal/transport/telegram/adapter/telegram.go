package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "weekbot/internal/transport"
	logx "weekbot/pkg/logx"
)

const defaultSendTimeout = 30 * time.Second

// Config configures the outbound Telegram transport.
type Config struct {
	Token string
	// URL overrides the Bot API endpoint (tests, local bot-api servers).
	URL       string
	ParseMode string
	// SendTimeout bounds every HTTP call; telebot calls are not context-aware.
	SendTimeout time.Duration
}

// Adapter sends text messages through the Telegram Bot API.
//
// It is send-only: no long polling is started, so one bot token can be shared
// with other tooling without competing for getUpdates.
type Adapter struct {
	cfg  Config
	log  logx.Logger
	bot  *tele.Bot
	http *http.Client
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	client := &http.Client{Timeout: cfg.SendTimeout}
	// Offline skips getMe: a rejected token must surface as a failed send,
	// not as a startup failure.
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimSpace(cfg.URL),
		Token:   cfg.Token,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b, http: client}, nil
}

// Send delivers text to a recipient chat using the configured parse mode.
func (a *Adapter) Send(ctx context.Context, recipientID int64, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: recipientID}, text, &kit.SendOptions{ParseMode: a.cfg.ParseMode})
	return err
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return first, err
			}
		}

		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		msg, err := a.sendChunk(ctx, chat, chunk, sendOpt)
		if err != nil {
			return first, fmt.Errorf("telegram send to %d: %w", to.ChatID, err)
		}
		if i == 0 && msg != nil {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	a.log.Debug("message sent", logx.Int64("chat_id", to.ChatID), logx.Int("chunks", len(chunks)))
	return first, nil
}

// sendChunk runs one Bot API call and gives up when ctx ends first. The HTTP
// client timeout still bounds the abandoned call.
func (a *Adapter) sendChunk(ctx context.Context, chat *tele.Chat, text string, opt *tele.SendOptions) (*tele.Message, error) {
	if ctx == nil {
		return a.bot.Send(chat, text, opt)
	}
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := a.bot.Send(chat, text, opt)
		done <- result{msg: m, err: err}
	}()
	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases idle HTTP connections held by the transport.
func (a *Adapter) Close() error {
	if a.http != nil {
		a.http.CloseIdleConnections()
	}
	return nil
}
