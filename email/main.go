package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"s3-csv-email-writer/internal/config"
	"s3-csv-email-writer/internal/logger"
	"s3-csv-email-writer/internal/mailer"
	"s3-csv-email-writer/internal/notify"
	"s3-csv-email-writer/internal/registry"
	"s3-csv-email-writer/internal/subscribe"
)

type welcomeSender interface {
	SendWelcome(ctx context.Context, to string) error
}

type sentRegistry interface {
	MarkSent(ctx context.Context, email, subscriptionID string) error
	Unmark(ctx context.Context, email string) error
}

type welcomeHandler struct {
	mailer   welcomeSender
	registry sentRegistry
	logger   *slog.Logger
}

func (h *welcomeHandler) handle(ctx context.Context, event events.CloudWatchEvent) error {
	if event.DetailType != notify.DetailType {
		h.logger.Debug("ignoring event", "event_id", event.ID, "detail_type", event.DetailType)
		return nil
	}

	sub, err := notify.ParseSubscription(event.Detail)
	if err != nil {
		return err
	}
	logr := h.logger.With("event_id", event.ID, "subscription_id", sub.ID)

	if err := h.registry.MarkSent(ctx, sub.Email, sub.ID); err != nil {
		if errors.Is(err, registry.ErrAlreadySent) {
			logr.Info("welcome mail already sent, skipping")
			return nil
		}
		return err
	}

	if err := h.mailer.SendWelcome(ctx, sub.Email); err != nil {
		logr.Error("failed to send welcome mail", "error", err)
		if uerr := h.registry.Unmark(ctx, sub.Email); uerr != nil {
			logr.Error("failed to release sent marker", "error", uerr)
		}
		return fmt.Errorf("send welcome mail: %w", err)
	}

	logr.Info("welcome mail sent", "email_domain", subscribe.EmailDomain(sub.Email))
	return nil
}

func main() {
	cfg, err := config.LoadWelcome()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr := logger.InitLogger(cfg.LogLevel)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	h := &welcomeHandler{
		mailer:   mailer.New(cfg),
		registry: registry.New(dynamodb.NewFromConfig(awsCfg), cfg.SentTableName),
		logger:   logr,
	}

	lambda.Start(h.handle)
}
