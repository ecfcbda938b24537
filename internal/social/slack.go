package social

import (
	"context"
	"errors"
	"strings"

	logx "charitybot/pkg/logx"

	"github.com/slack-go/slack"
)

type SlackConfig struct {
	Token   string
	Channel string
	// APIURL overrides the Web API endpoint (tests). Must end with '/'.
	APIURL string
}

// Slack posts announcements to a channel and can list its members as beneficiaries.
type Slack struct {
	api     *slack.Client
	channel string
	log     logx.Logger
}

func NewSlack(cfg SlackConfig, log logx.Logger) (*Slack, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("slack token is empty")
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		return nil, errors.New("slack channel is empty")
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Slack{api: slack.New(cfg.Token, opts...), channel: cfg.Channel, log: log}, nil
}

func (s *Slack) Send(ctx context.Context, text string) error {
	_, ts, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return classifyByText(err, []string{"msg_too_long"}, []string{"duplicate"})
	}
	s.log.Debug("slack post sent", logx.String("channel", s.channel), logx.String("ts", ts))
	return nil
}

// ListFollowers returns the handles of the channel's human members, excluding the bot itself.
func (s *Slack) ListFollowers(ctx context.Context) ([]string, error) {
	self := ""
	if auth, err := s.api.AuthTestContext(ctx); err == nil {
		self = auth.UserID
	} else {
		s.log.Warn("slack auth.test failed; bot may list itself", logx.Err(err))
	}

	var (
		ids    []string
		cursor string
	)
	for {
		page, next, err := s.api.GetUsersInConversationContext(ctx, &slack.GetUsersInConversationParameters{
			ChannelID: s.channel,
			Cursor:    cursor,
			Limit:     200,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, page...)
		if next == "" {
			break
		}
		cursor = next
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == self {
			continue
		}
		u, err := s.api.GetUserInfoContext(ctx, id)
		if err != nil {
			return nil, err
		}
		if u.IsBot || u.Deleted || u.Name == "" {
			continue
		}
		out = append(out, u.Name)
	}
	return out, nil
}
