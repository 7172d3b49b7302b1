package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NewsScout/internal/ports"
)

// Notifier sends formatted messages to Telegram chats via the bot API.
// The channel ID is the per-recipient chat identifier.
type Notifier struct {
	botToken string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the bot token shared by all recipients.
func NewNotifier(botToken string) *Notifier {
	return &Notifier{
		botToken: botToken,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Send posts one message to one chat. Errors are returned so callers
// can isolate per-recipient failures.
func (n *Notifier) Send(ctx context.Context, channelID, text, format string) error {
	if n.botToken == "" || channelID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", channelID)
	form.Set("text", text)
	if format != "" {
		form.Set("parse_mode", format)
	}
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}
