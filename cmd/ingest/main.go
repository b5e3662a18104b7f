// Package main is the entrypoint for the report ingestion Lambda function.
//
// The function is triggered by S3 ObjectCreated events on the ingest bucket.
// Each invocation reads the File-Type tag and content of one object, parses
// the vaccination report and merges it into PostgreSQL.
//
// This file handles dependency wiring (Cold Start) and delegates all business
// logic to the internal/ingest package.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"vaxingest/internal/config"
	"vaxingest/internal/db"
	"vaxingest/internal/ingest"
	"vaxingest/internal/objectstore"
	"vaxingest/internal/types"
)

// --- Dead Letter Queue Implementation ---

// sqsAPI is the subset of the SQS SDK client used for dead-lettering.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// liveDeadLetterQueue is the production implementation of
// ingest.DeadLetterQueue. Each failed object becomes one SQS message.
type liveDeadLetterQueue struct {
	client   sqsAPI
	queueURL string
}

// Send serializes msg to JSON and enqueues it. Stage and error category are
// also attached as message attributes so consumers can filter without
// parsing the body.
func (q *liveDeadLetterQueue) Send(ctx context.Context, msg types.DeadLetterMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal DeadLetterMessage: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			types.DimStage: {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Stage)),
			},
			types.DimCategory: {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Category)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SQS SendMessage failed: %w", err)
	}
	return nil
}

// --- Metric Publisher Implementation ---

// cloudwatchAPI is the subset of the CloudWatch SDK client used by the ingester.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// liveMetricPublisher is the production implementation of
// ingest.MetricPublisher. It publishes metrics to CloudWatch under the
// configured namespace.
type liveMetricPublisher struct {
	client    cloudwatchAPI
	namespace string
}

// PublishSuccess emits "IngestSucceeded=1" dimensioned by FileType and Outcome.
func (p *liveMetricPublisher) PublishSuccess(ctx context.Context, fileType string, outcome db.Outcome) error {
	return p.put(ctx, types.MetricIngestSucceeded, []cwTypes.Dimension{
		{Name: aws.String(types.DimFileType), Value: aws.String(fileType)},
		{Name: aws.String(types.DimOutcome), Value: aws.String(string(outcome))},
	})
}

// PublishFailure emits "IngestFailed=1" dimensioned by Stage and Category.
func (p *liveMetricPublisher) PublishFailure(ctx context.Context, stage types.Stage, category types.ErrorCategory) error {
	return p.put(ctx, types.MetricIngestFailed, []cwTypes.Dimension{
		{Name: aws.String(types.DimStage), Value: aws.String(string(stage))},
		{Name: aws.String(types.DimCategory), Value: aws.String(string(category))},
	})
}

func (p *liveMetricPublisher) put(ctx context.Context, name string, dims []cwTypes.Dimension) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwTypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(1),
				Unit:       cwTypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s metric: %w", name, err)
	}
	return nil
}

// parseLogLevel maps LOG_LEVEL to a slog level. Config validation has
// already restricted the value.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildIngestor wires the pipeline from loaded configuration and AWS clients.
func buildIngestor(cfg *config.Config, logger *slog.Logger, s3Client objectstore.S3API, sqsClient sqsAPI, cwClient cloudwatchAPI) *ingest.Ingestor {
	ing := &ingest.Ingestor{
		Config:  ingest.Config{Bucket: cfg.Ingest.Bucket},
		Log:     logger,
		Objects: objectstore.NewClient(s3Client, cfg.Ingest.MaxObjectBytes, logger),
		Store:   db.NewStore(db.NewConnector(cfg.Database, logger), logger),
	}
	if cfg.Ingest.DeadLetterQueueURL != "" {
		ing.DeadLetters = &liveDeadLetterQueue{client: sqsClient, queueURL: cfg.Ingest.DeadLetterQueueURL}
	}
	if cfg.Observability.EnableMetrics {
		ing.Metrics = &liveMetricPublisher{client: cwClient, namespace: cfg.Observability.MetricNamespace}
	}
	return ing
}

func main() {
	// Bootstrap logger until LOG_LEVEL is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Ingest Lambda initializing (cold start)")

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadConfig(config.NewSecretProvider(os.Getenv("APP_ENV"), region))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})).With(
		"service", cfg.Service,
		"version", cfg.Build.Version,
	)

	// Load AWS SDK configuration.
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// LocalStack serves buckets on path-style URLs.
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			o.UsePathStyle = true
		}
	})

	ing := buildIngestor(cfg, logger, s3Client, sqs.NewFromConfig(awsCfg), cloudwatch.NewFromConfig(awsCfg))

	logger.Info("Ingest Lambda initialized",
		"environment", cfg.Environment,
		"ingest_bucket", cfg.Ingest.Bucket,
		"dead_letter_queue", cfg.Ingest.DeadLetterQueueURL,
		"metric_namespace", cfg.Observability.MetricNamespace,
		"metrics_enabled", cfg.Observability.EnableMetrics,
		"db_endpoint", cfg.Database.Endpoint,
	)

	// Local mode: read JSON event from stdin instead of starting Lambda runtime.
	// Usage: echo '{"bucket":"reports","key":"site-7.xml"}' | go run ./cmd/ingest
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("No input received on stdin")
			os.Exit(1)
		}
		if err := ing.Handler(context.Background(), json.RawMessage(payload)); err != nil {
			logger.Error("Handler execution failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Handler execution completed")
		return
	}

	lambda.Start(ing.Handler)
}
