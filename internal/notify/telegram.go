package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gosom/pingwatch/internal/common"
)

const defaultTelegramURL = "https://api.telegram.org"

type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string
	Client  common.HTTPClient
}

// Telegram sends alerts through the Bot API sendMessage method.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  common.HTTPClient
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is missing")
	}
	if cfg.ChatID == "" {
		return nil, errors.New("telegram chat id is missing")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	ans := Telegram{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		baseURL: cfg.BaseURL,
		client:  cfg.Client,
	}
	return &ans, nil
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	params := url.Values{}
	params.Set("chat_id", t.chatID)
	params.Set("text", text)
	u := t.baseURL + "/bot" + t.token + "/sendMessage?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return redact(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var tr telegramResponse
	decodeErr := sonic.Unmarshal(body, &tr)
	if resp.StatusCode == http.StatusTooManyRequests || tr.ErrorCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter(tr.Parameters.RetryAfter, resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, tr.Description)
	}
	if decodeErr != nil {
		return fmt.Errorf("telegram: decode response: %w", decodeErr)
	}
	if !tr.OK {
		return fmt.Errorf("telegram: %d %s", tr.ErrorCode, tr.Description)
	}
	return nil
}

// redact drops the request URL, which carries the bot token, from
// transport errors.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("telegram: %s: %w", uerr.Op, uerr.Err)
	}
	return fmt.Errorf("telegram: %w", err)
}

func retryAfter(seconds int, header string) time.Duration {
	if seconds <= 0 && header != "" {
		if v, err := strconv.Atoi(header); err == nil {
			seconds = v
		}
	}
	return atLeastOneSecond(time.Duration(seconds) * time.Second)
}

func atLeastOneSecond(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}
