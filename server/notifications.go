package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
)

// SendNotification posts content to the configured Discord webhook. Failures are logged.
func (s *Server) SendNotification(ctx context.Context, content string) {
	if !s.Cfg.Notifications.Enabled {
		return
	}

	if err := s.sendWebhook(ctx, discord.WebhookMessageCreate{
		Content: content,
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to send notification", slog.Any("err", err))
	}
}

func (s *Server) sendWebhook(ctx context.Context, message discord.WebhookMessageCreate) error {
	client, err := webhook.NewWithURL(s.Cfg.Notifications.WebhookURL,
		webhook.WithRestClientConfigOpts(rest.WithHTTPClient(s.HTTPClient)),
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook client: %w", err)
	}
	defer client.Close(ctx)

	if _, err = client.CreateMessage(message, rest.CreateWebhookMessageParams{}, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to send webhook message: %w", err)
	}
	return nil
}
