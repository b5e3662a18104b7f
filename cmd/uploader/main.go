// Package main implements the uploader CLI, which puts local report files into
// the ingest bucket with the File-Type tag the ingestion Lambda dispatches on.
//
// Usage:
//
//	go run ./cmd/uploader --bucket=reports site-7.xml site-9.json
//	go run ./cmd/uploader --bucket=reports --type=json --prefix=2021/05/ export.txt
//
// The object key is the file's base name, optionally prefixed. Without
// --type the file type is inferred from the extension: ".xml" uploads as
// xml and anything else as json. Files upload concurrently.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"vaxingest/internal/config"
	"vaxingest/internal/objectstore"
	"vaxingest/internal/types"
)

// defaultConcurrency bounds parallel PutObject calls.
const defaultConcurrency = 4

// uploader is the part of objectstore.Client the CLI needs.
type uploader interface {
	Upload(ctx context.Context, ref types.ObjectRef, body []byte, fileType string) error
}

// options holds parsed command-line flags.
type options struct {
	bucket      string
	fileType    string
	prefix      string
	concurrency int
	files       []string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("uploader", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.bucket, "bucket", os.Getenv("INGEST_BUCKET"), "Destination bucket (default $INGEST_BUCKET)")
	fs.StringVar(&opts.fileType, "type", "", "File type tag: xml or json (default: from extension)")
	fs.StringVar(&opts.prefix, "prefix", "", "Key prefix prepended to each file name")
	fs.IntVar(&opts.concurrency, "concurrency", defaultConcurrency, "Maximum parallel uploads")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: uploader --bucket=NAME [flags] FILE...\n\n")
		fmt.Fprintf(stderr, "Upload report files tagged for ingestion.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.files = fs.Args()

	switch {
	case opts.bucket == "":
		return options{}, fmt.Errorf("--bucket is required")
	case len(opts.files) == 0:
		return options{}, fmt.Errorf("at least one file is required")
	case opts.fileType != "" && opts.fileType != types.FileTypeXML && opts.fileType != types.FileTypeJSON:
		return options{}, fmt.Errorf("--type must be %q or %q, got %q", types.FileTypeXML, types.FileTypeJSON, opts.fileType)
	case opts.concurrency < 1:
		return options{}, fmt.Errorf("--concurrency must be at least 1")
	}
	return opts, nil
}

// fileTypeFor infers the tag from the extension. Anything that is not .xml
// is treated as json.
func fileTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return types.FileTypeXML
	}
	return types.FileTypeJSON
}

// objectKey derives the key from the file's base name.
func objectKey(prefix, path string) string {
	return prefix + filepath.Base(path)
}

// run uploads every file, stopping new uploads after the first failure.
func run(ctx context.Context, opts options, up uploader, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)

	for _, path := range opts.files {
		path := path
		g.Go(func() error {
			body, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			fileType := opts.fileType
			if fileType == "" {
				fileType = fileTypeFor(path)
			}
			ref := types.ObjectRef{Bucket: opts.bucket, Key: objectKey(opts.prefix, path)}

			if err := up.Upload(ctx, ref, body, fileType); err != nil {
				return fmt.Errorf("uploading %s: %w", path, err)
			}
			logger.InfoContext(ctx, "Uploaded report",
				"file", path,
				"bucket", ref.Bucket,
				"key", ref.Key,
				"file_type", fileType,
				"bytes", len(body),
			)
			return nil
		})
	}
	return g.Wait()
}

// loadEnvironment loads .env and resolves _SSM_PARAM pointers the same way
// the Lambda does, then returns the region to use. The SSM lookup itself runs
// in the region known before resolution.
func loadEnvironment(newProvider func(appEnv, region string) config.SecretProvider, envFiles ...string) (string, error) {
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load(envFiles...)

	if err := config.ResolveSecrets(newProvider(os.Getenv("APP_ENV"), awsRegion())); err != nil {
		return "", err
	}
	return awsRegion(), nil
}

func awsRegion() string {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	return "us-east-1"
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	region, err := loadEnvironment(config.NewSecretProvider)
	if err != nil {
		logger.Error("Failed to resolve SSM parameters", "error", err)
		os.Exit(1)
	}

	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	client := objectstore.NewClient(s3Client, 0, logger)
	if err := run(ctx, opts, client, logger); err != nil {
		logger.Error("Upload failed", "error", err)
		os.Exit(1)
	}
}
