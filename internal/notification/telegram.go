package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts to one chat through the Bot API, formatted
// as MarkdownV2 with one line per pick.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	log      *slog.Logger
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// telegramReply is the Bot API response envelope.
type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegramNotifier(botToken, chatID string, log *slog.Logger) *TelegramNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With("component", "telegram"),
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  formatTelegram(alert),
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	var reply telegramReply
	decodeErr := json.NewDecoder(resp.Body).Decode(&reply)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && reply.Description != "" {
			return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, reply.Description)
		}
		return fmt.Errorf("telegram: status %d", resp.StatusCode)
	}

	t.log.Debug("alert sent", "title", alert.Title, "picks", len(alert.Picks))
	return nil
}

// formatTelegram renders picks as bold signal lines, falling back to the
// plain message when the alert carries no picks.
func formatTelegram(alert Alert) string {
	icon := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n\n", icon, escapeMarkdown(alert.Title))
	if len(alert.Picks) == 0 {
		b.WriteString(escapeMarkdown(alert.Message))
		return b.String()
	}
	for _, p := range alert.Picks {
		line := fmt.Sprintf(" %s @ %.2f, confidence %.1f%%, risk %.1f", p.Symbol, p.Price, p.Confidence, p.RiskScore)
		fmt.Fprintf(&b, "*%s*%s\n", escapeMarkdown(p.Signal), escapeMarkdown(line))
	}
	// the message carries an overflow line when picks were capped
	if lines := strings.Split(alert.Message, "\n"); len(lines) > len(alert.Picks) {
		b.WriteString(escapeMarkdown(lines[len(lines)-1]))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!\\"
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
