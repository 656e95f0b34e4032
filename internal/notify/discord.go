package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts alerts to a channel using a bot token.
type Discord struct {
	channelID string
	session   discordSender
}

func NewDiscord(token, channelID string) (*Discord, error) {
	if token == "" {
		return nil, errors.New("discord token is missing")
	}
	if channelID == "" {
		return nil, errors.New("discord channel id is missing")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// the dispatcher owns backoff, so rate limits must surface as errors
	dg.ShouldRetryOnRateLimit = false
	return &Discord{channelID: channelID, session: dg}, nil
}

func (d *Discord) Send(ctx context.Context, text string) error {
	_, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx))
	return discordError(err)
}

func discordError(err error) error {
	if err == nil {
		return nil
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return &RateLimitError{RetryAfter: atLeastOneSecond(rl.TooManyRequests.RetryAfter)}
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter(0, rest.Response.Header.Get("Retry-After"))}
	}
	return err
}
