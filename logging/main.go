package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"s3-csv-email-writer/internal/config"
	"s3-csv-email-writer/internal/logger"
	"s3-csv-email-writer/internal/notify"
	"s3-csv-email-writer/internal/subscribe"
)

type auditHandler struct {
	logger *slog.Logger
}

// handle writes one audit line per subscription event. Only the address
// domain is logged.
func (h *auditHandler) handle(ctx context.Context, event events.CloudWatchEvent) error {
	sub, err := notify.ParseSubscription(event.Detail)
	if err != nil {
		h.logger.Warn("undecodable subscription event",
			"event_id", event.ID,
			"source", event.Source,
			"detail_type", event.DetailType,
			"error", err,
		)
		return nil
	}

	h.logger.Info("subscription recorded",
		"event_id", event.ID,
		"source", event.Source,
		"detail_type", event.DetailType,
		"subscription_id", sub.ID,
		"email_domain", subscribe.EmailDomain(sub.Email),
		"subscribed_at", sub.SubscribedAt.Format(time.RFC3339),
	)
	return nil
}

func main() {
	h := &auditHandler{logger: logger.InitLogger(config.LogLevelFromEnv())}
	lambda.Start(h.handle)
}
