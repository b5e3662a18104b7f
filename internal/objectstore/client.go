// Package objectstore reads and writes report objects in S3: the File-Type
// tag that selects a parser, the (optionally compressed) object body, and
// tagged uploads for the uploader tool.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"vaxingest/internal/types"
)

// DefaultMaxObjectBytes caps how much of an object is read into memory.
const DefaultMaxObjectBytes int64 = 16 << 20

// S3API is the subset of the S3 client used here.
type S3API interface {
	GetObjectTagging(ctx context.Context, params *s3.GetObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// Client fetches tags and content for report objects.
type Client struct {
	s3       S3API
	maxBytes int64
	logger   *slog.Logger

	// zstdPool provides reusable decoders bounded to maxBytes of output.
	zstdPool sync.Pool
}

// NewClient creates a Client. A non-positive maxBytes selects
// DefaultMaxObjectBytes.
func NewClient(api S3API, maxBytes int64, logger *slog.Logger) *Client {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{s3: api, maxBytes: maxBytes, logger: logger}
	c.zstdPool = sync.Pool{
		New: func() any {
			d, err := zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderMaxMemory(uint64(maxBytes)),
			)
			if err != nil {
				// Only invalid options fail here.
				panic(fmt.Sprintf("zstd.NewReader: %v", err))
			}
			return d
		},
	}
	return c
}

// FileType returns the value of the object's File-Type tag. Surrounding
// whitespace is kept; dispatch decides what to accept.
func (c *Client) FileType(ctx context.Context, ref types.ObjectRef) (string, error) {
	out, err := c.s3.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamObjectStore,
			fmt.Sprintf("failed to read tags of %s", ref), err)
	}

	for _, tag := range out.TagSet {
		if aws.ToString(tag.Key) == types.FileTypeTagKey {
			return aws.ToString(tag.Value), nil
		}
	}
	return "", types.NewAppErrorWithDetails(types.ErrCodeInputMissingTypeTag,
		fmt.Sprintf("object %s has no %s tag", ref, types.FileTypeTagKey), nil,
		map[string]any{"tag_count": len(out.TagSet)})
}

// Content reads the whole object body. Bodies stored with a gzip or zstd
// Content-Encoding are decoded. Both the stored and the decoded size are
// capped at the configured limit.
func (c *Client) Content(ctx context.Context, ref types.ObjectRef) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamObjectStore,
			fmt.Sprintf("failed to fetch %s", ref), err)
	}
	defer func() {
		// Drain so the connection can be reused; ignore what is left over.
		_, _ = io.Copy(io.Discard, out.Body)
		if cerr := out.Body.Close(); cerr != nil {
			c.logger.WarnContext(ctx, "failed to close object body", "bucket", ref.Bucket, "key", ref.Key, "error", cerr)
		}
	}()

	raw, err := c.readCapped(out.Body)
	if err != nil {
		return nil, c.wrapReadErr(ref, err)
	}

	encoding := strings.ToLower(strings.TrimSpace(aws.ToString(out.ContentEncoding)))
	switch encoding {
	case "", "identity":
		return raw, nil
	case "gzip":
		return c.gunzip(ref, raw)
	case "zstd":
		return c.unzstd(ref, raw)
	default:
		return nil, types.NewAppErrorWithDetails(types.ErrCodeParseUnknownEncoding,
			fmt.Sprintf("unsupported content encoding %q on %s", encoding, ref), nil,
			map[string]any{"content_encoding": encoding})
	}
}

// Upload stores body under ref and tags it with its file type.
func (c *Client) Upload(ctx context.Context, ref types.ObjectRef, body []byte, fileType string) error {
	tagging := url.Values{types.FileTypeTagKey: []string{fileType}}.Encode()
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(ref.Bucket),
		Key:           aws.String(ref.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		Tagging:       aws.String(tagging),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamObjectStore,
			fmt.Sprintf("failed to upload %s", ref), err)
	}
	return nil
}

var errTooLarge = errors.New("object exceeds size limit")

// readCapped reads r to EOF, failing once more than maxBytes arrive.
func (c *Client) readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBytes {
		return nil, errTooLarge
	}
	return data, nil
}

func (c *Client) wrapReadErr(ref types.ObjectRef, err error) error {
	if errors.Is(err, errTooLarge) {
		return types.NewAppErrorWithDetails(types.ErrCodeInputObjectTooLarge,
			fmt.Sprintf("object %s is larger than %d bytes", ref, c.maxBytes), nil,
			map[string]any{"max_bytes": c.maxBytes})
	}
	return types.NewAppError(types.ErrCodeUpstreamObjectStore,
		fmt.Sprintf("failed to read %s", ref), err)
}

func (c *Client) gunzip(ref types.ObjectRef, raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeParseUnknownEncoding,
			fmt.Sprintf("invalid gzip stream in %s", ref), err)
	}
	defer zr.Close()

	data, err := c.readCapped(zr)
	if errors.Is(err, errTooLarge) {
		return nil, c.wrapReadErr(ref, err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeParseUnknownEncoding,
			fmt.Sprintf("invalid gzip stream in %s", ref), err)
	}
	return data, nil
}

func (c *Client) unzstd(ref types.ObjectRef, raw []byte) ([]byte, error) {
	decoder := c.zstdPool.Get().(*zstd.Decoder)
	defer c.zstdPool.Put(decoder)

	data, err := decoder.DecodeAll(raw, nil)
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, c.wrapReadErr(ref, errTooLarge)
		}
		return nil, types.NewAppError(types.ErrCodeParseUnknownEncoding,
			fmt.Sprintf("invalid zstd stream in %s", ref), err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, c.wrapReadErr(ref, errTooLarge)
	}
	return data, nil
}
