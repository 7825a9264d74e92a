package discord

import (
	"fmt"
	"strings"
	"time"

	"polytracker/clients/notifier"
	"polytracker/config"
	"polytracker/internal/wallet"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Maximum failed addresses listed in one embed; the rest are summarized.
const maxListedFailures = 10

// DiscordClient sends refresh reports to Discord.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
	isProd    bool
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.DiscordChannelID()

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord reports disabled")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}
}

// Enabled reports whether a Discord session is available.
func (dc *DiscordClient) Enabled() bool {
	return dc.session != nil
}

// SendRefreshReport posts a refresh run summary as an embed.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) SendRefreshReport(report notifier.RefreshReport) {
	if dc.session == nil {
		dc.logger.Debug("discord session not initialized, skipping report")
		return
	}

	embed := dc.buildReportEmbed(report)

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord refresh report",
		zap.Int("failed", report.Failed),
		zap.Int("addresses", report.Addresses),
	)
}

func (dc *DiscordClient) buildReportEmbed(report notifier.RefreshReport) *discordgo.MessageEmbed {
	color := 0x2ECC71 // Green when clean
	title := "✅ Cache Refresh Complete"
	if report.HasFailures() {
		color = 0xE67E22 // Orange for partial failure
		title = "⚠️ Cache Refresh Had Failures"
	}
	if report.WatchlistError != "" {
		color = 0xE74C3C // Red when the watchlist could not be read
		title = "🚨 Cache Refresh Failed"
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Addresses",
			Value:  fmt.Sprintf("%d", report.Addresses),
			Inline: true,
		},
		{
			Name:   "Refreshed",
			Value:  fmt.Sprintf("%d", report.Refreshed),
			Inline: true,
		},
		{
			Name:   "Failed",
			Value:  fmt.Sprintf("%d", report.Failed),
			Inline: true,
		},
		{
			Name:   "Duration",
			Value:  report.Duration.Round(time.Millisecond).String(),
			Inline: true,
		},
	}

	var description string
	if report.WatchlistError != "" {
		description = fmt.Sprintf("Watchlist unavailable: `%s`", report.WatchlistError)
	} else if len(report.FailedAddresses) > 0 {
		description = formatFailures(report.FailedAddresses)
	}

	ts := report.Started
	if ts.IsZero() {
		ts = time.Now()
	}
	stage := "beta"
	if dc.isProd {
		stage = "prod"
	}
	footerText := fmt.Sprintf("polytracker %s * %s", stage, ts.UTC().Format("1/2/2006, 3:04:05PM (MST)"))

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func formatFailures(failures []notifier.FailedAddress) string {
	var sb strings.Builder
	for i, f := range failures {
		if i == maxListedFailures {
			fmt.Fprintf(&sb, "…and %d more", len(failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(&sb, "`%s` %s\n", wallet.Short(f.Address), truncate(f.Error, 120))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
