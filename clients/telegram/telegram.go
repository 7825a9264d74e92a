package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"polytracker/clients/notifier"
	"polytracker/config"
	"polytracker/internal/wallet"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Maximum failed addresses listed in one message.
const maxListedFailures = 10

// TelegramClient sends refresh reports to Telegram.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger   *zap.Logger
	botToken string
	chatID   string
	isProd   bool
	apiBase  string
	client   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	chatID := cfg.TelegramChatID()

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram reports disabled")
		return &TelegramClient{
			logger:  logger,
			chatID:  chatID,
			isProd:  cfg.IsProd,
			apiBase: defaultAPIBase,
		}
	}

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("chatID", chatID),
	)

	return &TelegramClient{
		logger:   logger,
		botToken: token,
		chatID:   chatID,
		isProd:   cfg.IsProd,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether both a token and a chat are configured.
func (tc *TelegramClient) Enabled() bool {
	return tc.botToken != "" && tc.chatID != ""
}

// SendRefreshReport posts a refresh run summary.
// Implements notifier.Notifier interface.
func (tc *TelegramClient) SendRefreshReport(report notifier.RefreshReport) {
	if !tc.Enabled() {
		tc.logger.Debug("telegram not configured, skipping report")
		return
	}

	if err := tc.sendMessage(tc.buildReportMessage(report)); err != nil {
		tc.logger.Error("failed to send telegram message", zap.Error(err))
		return
	}

	tc.logger.Info("sent telegram refresh report",
		zap.Int("failed", report.Failed),
		zap.Int("addresses", report.Addresses),
	)
}

func (tc *TelegramClient) buildReportMessage(report notifier.RefreshReport) string {
	var sb strings.Builder

	switch {
	case report.WatchlistError != "":
		sb.WriteString("🚨 *Cache Refresh Failed*\n\n")
	case report.HasFailures():
		sb.WriteString("⚠️ *Cache Refresh Had Failures*\n\n")
	default:
		sb.WriteString("✅ *Cache Refresh Complete*\n\n")
	}

	fmt.Fprintf(&sb, "*Addresses:* %d\n", report.Addresses)
	fmt.Fprintf(&sb, "*Refreshed:* %d\n", report.Refreshed)
	fmt.Fprintf(&sb, "*Failed:* %d\n", report.Failed)
	fmt.Fprintf(&sb, "*Duration:* %s\n", report.Duration.Round(time.Millisecond))

	if report.WatchlistError != "" {
		fmt.Fprintf(&sb, "\nWatchlist unavailable: %s\n", escapeMarkdown(report.WatchlistError))
	}

	if len(report.FailedAddresses) > 0 {
		sb.WriteString("\n")
		for i, f := range report.FailedAddresses {
			if i == maxListedFailures {
				fmt.Fprintf(&sb, "...and %d more\n", len(report.FailedAddresses)-maxListedFailures)
				break
			}
			fmt.Fprintf(&sb, "`%s` %s\n", wallet.Short(f.Address), escapeMarkdown(f.Error))
		}
	}

	stage := "beta"
	if tc.isProd {
		stage = "prod"
	}
	ts := report.Started
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&sb, "\n_polytracker %s %s_", stage, ts.UTC().Format("2006-01-02 15:04:05 MST"))

	return sb.String()
}

func (tc *TelegramClient) sendMessage(text string) error {
	url := fmt.Sprintf("%s/bot%s/%s", tc.apiBase, tc.botToken, "sendMessage")

	payload := map[string]interface{}{
		"chat_id":    tc.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := tc.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// Close is a no-op; the HTTP client holds no long-lived resources.
func (tc *TelegramClient) Close() error {
	return nil
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
