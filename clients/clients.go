package clients

import (
	"context"
	"fmt"

	"polytracker/clients/discord"
	"polytracker/clients/notifier"
	"polytracker/clients/polymarketapi"
	"polytracker/clients/telegram"
	"polytracker/clients/watchlist"
	"polytracker/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord    *discord.DiscordClient
	Telegram   *telegram.TelegramClient
	Notifier   notifier.Notifier // Combined notifier for all channels
	Polymarket *polymarketapi.PolymarketApiClient
	Watchlist  watchlist.Store
}

func NewClients(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Clients, error) {
	discordClient := discord.NewDiscordClient(logger, cfg)
	telegramClient := telegram.NewTelegramClient(logger, cfg)

	store, err := watchlist.Open(ctx, logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("open watchlist store: %w", err)
	}

	return &Clients{
		Logger:     logger,
		Discord:    discordClient,
		Telegram:   telegramClient,
		Notifier:   notifier.NewMultiNotifier(discordClient, telegramClient),
		Polymarket: polymarketapi.NewPolymarketApiClient(logger, cfg),
		Watchlist:  store,
	}, nil
}

// Close releases the notifier and watchlist resources.
func (c *Clients) Close() error {
	var lastErr error
	if c.Notifier != nil {
		if err := c.Notifier.Close(); err != nil {
			lastErr = err
		}
	}
	if c.Watchlist != nil {
		if err := c.Watchlist.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
