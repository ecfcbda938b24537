package social

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	logx "charitybot/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

const telegramTextLimit = 4096

type TelegramConfig struct {
	Token string
	// Chat is a numeric chat id or a public @channel name.
	Chat string
	// APIURL overrides the Bot API endpoint (tests).
	APIURL string
}

// Telegram posts announcements to a channel or group.
type Telegram struct {
	bot  *tele.Bot
	to   tele.Recipient
	log  logx.Logger
	chat string
}

type channelName string

func (c channelName) Recipient() string { return string(c) }

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	to, err := telegramRecipient(cfg.Chat)
	if err != nil {
		return nil, err
	}
	// Offline: the bot only sends, it never polls or calls getMe at startup.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: b, to: to, log: log, chat: cfg.Chat}, nil
}

func telegramRecipient(chat string) (tele.Recipient, error) {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return nil, errors.New("telegram chat is empty")
	}
	if strings.HasPrefix(chat, "@") {
		return channelName(chat), nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat %q: want a numeric id or @channel", chat)
	}
	return &tele.Chat{ID: id}, nil
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if utf8.RuneCountInString(text) > telegramTextLimit {
		return fmt.Errorf("%w: %d runes", ErrTooLong, utf8.RuneCountInString(text))
	}
	_, err := t.bot.Send(t.to, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return classifyByText(err, []string{"message is too long"}, []string{"message is not modified"})
	}
	t.log.Debug("telegram post sent", logx.String("chat", t.chat), logx.Int("len", len(text)))
	return nil
}
