package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/xraph/herald/job"
)

// ErrNoChannel is returned when a message names no channel and the sender
// has no default.
var ErrNoChannel = errors.New("notify: no discord channel")

// EmbedSender is the subset of *discordgo.Session used by DiscordSender.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Embed colours per severity.
var severityColors = map[job.Severity]int{
	job.SeverityInfo:     0x3498DB,
	job.SeveritySuccess:  0x2ECC71,
	job.SeverityWarning:  0xF1C40F,
	job.SeverityError:    0xE74C3C,
	job.SeverityCritical: 0x8E44AD,
}

// DiscordOption configures a DiscordSender.
type DiscordOption func(*DiscordSender)

// WithRateLimit caps outbound messages at r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) DiscordOption {
	return func(s *DiscordSender) { s.limiter = rate.NewLimiter(r, burst) }
}

// WithDiscordClock overrides the clock used for embed timestamps.
func WithDiscordClock(now func() time.Time) DiscordOption {
	return func(s *DiscordSender) { s.now = now }
}

// DiscordSender posts delivery messages as Discord embeds.
type DiscordSender struct {
	client         EmbedSender
	defaultChannel string
	limiter        *rate.Limiter
	now            func() time.Time
}

// NewDiscordSender creates a sender. Messages without a channel go to
// defaultChannel. The default rate limit is 5 messages per 5 seconds,
// matching Discord's per-channel bucket.
func NewDiscordSender(client EmbedSender, defaultChannel string, opts ...DiscordOption) *DiscordSender {
	s := &DiscordSender{
		client:         client,
		defaultChannel: defaultChannel,
		limiter:        rate.NewLimiter(rate.Every(time.Second), 5),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenDiscord creates a REST-only Discord session for a bot token.
func OpenDiscord(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("notify: discord token is empty")
	}
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return sess, nil
}

// Send implements Sender. The receipt is the Discord message ID.
func (s *DiscordSender) Send(ctx context.Context, msg *job.DeliveryPayload) (string, error) {
	channel := msg.ChannelID
	if channel == "" {
		channel = s.defaultChannel
	}
	if channel == "" {
		return "", ErrNoChannel
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("notify: discord rate limit: %w", err)
	}

	m, err := s.client.ChannelMessageSendEmbed(channel, s.embed(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("notify: discord send: %w", err)
	}
	return m.ID, nil
}

func (s *DiscordSender) embed(msg *job.DeliveryPayload) *discordgo.MessageEmbed {
	title := msg.Title
	if title == "" {
		title = msg.Source
	}
	color, ok := severityColors[msg.Severity]
	if !ok {
		color = severityColors[job.SeverityInfo]
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: msg.Message,
		Color:       color,
		Timestamp:   s.now().UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: msg.Source + " · " + string(msg.Severity)},
	}
}
