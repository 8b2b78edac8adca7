package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/eventbridge"

	"s3-csv-email-writer/internal/config"
	"s3-csv-email-writer/internal/ledger"
	"s3-csv-email-writer/internal/logger"
	"s3-csv-email-writer/internal/notify"
	"s3-csv-email-writer/internal/subscribe"
)

func buildHandler(ctx context.Context, cfg *config.Subscriber, log *slog.Logger) (*subscribe.Handler, error) {
	// The ledger bucket lives on an S3-compatible provider, so region,
	// endpoint and credentials come from our own config rather than the
	// Lambda role.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.PathStyle
	})

	loc, err := ledger.Paris()
	if err != nil {
		return nil, fmt.Errorf("load ledger timezone: %w", err)
	}

	store := ledger.NewStore(client, cfg.BucketName, ledger.Key, cfg.ConditionalWrites)
	l := ledger.New(store, loc,
		ledger.WithAttempts(cfg.WriteAttempts),
		ledger.WithLogger(log),
	)

	opts := []subscribe.Option{subscribe.WithLogger(log)}
	if cfg.EventBusName != "" {
		// The bus is in the function's own AWS account; the session picks
		// up the execution role and AWS_REGION.
		sess, err := session.NewSession()
		if err != nil {
			return nil, fmt.Errorf("create AWS session: %w", err)
		}
		opts = append(opts, subscribe.WithPublisher(
			notify.NewEventBridgePublisher(eventbridge.New(sess), cfg.EventBusName),
		))
	}

	return subscribe.New(l, opts...), nil
}

func main() {
	cfg, err := config.LoadSubscriber()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr := logger.InitLogger(cfg.LogLevel)

	h, err := buildHandler(context.Background(), cfg, logr)
	if err != nil {
		log.Fatalf("failed to initialize handler: %v", err)
	}

	logr.Info("subscription function ready", "bucket", cfg.BucketName, "key", ledger.Key)
	lambda.Start(h.HandleAPIGateway)
}
