// Package ingest implements the report ingestion pipeline: one object in,
// one merged row out. Stages run strictly in order and the first failure
// aborts the object; nothing is retried.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vaxingest/internal/db"
	"vaxingest/internal/report"
	"vaxingest/internal/types"
)

// ObjectReader fetches the tag and content of a report object.
// *objectstore.Client satisfies it.
type ObjectReader interface {
	FileType(ctx context.Context, ref types.ObjectRef) (string, error)
	Content(ctx context.Context, ref types.ObjectRef) ([]byte, error)
}

// ReportStore persists a validated record. *db.Store satisfies it.
type ReportStore interface {
	Save(ctx context.Context, rec *report.Record) (db.SaveResult, error)
}

// DeadLetterQueue receives one message per failed object.
type DeadLetterQueue interface {
	Send(ctx context.Context, msg types.DeadLetterMessage) error
}

// MetricPublisher emits per-object outcome metrics.
type MetricPublisher interface {
	PublishSuccess(ctx context.Context, fileType string, outcome db.Outcome) error
	PublishFailure(ctx context.Context, stage types.Stage, category types.ErrorCategory) error
}

// Config holds the pipeline settings.
type Config struct {
	// Bucket, when set, is the only bucket whose notifications are processed.
	Bucket string
}

// Ingestor wires the pipeline stages together. DeadLetters and Metrics are
// optional.
type Ingestor struct {
	Config      Config
	Log         *slog.Logger
	Objects     ObjectReader
	Store       ReportStore
	DeadLetters DeadLetterQueue
	Metrics     MetricPublisher

	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() string
}

// Result summarizes one successfully ingested object.
type Result struct {
	Ref      types.ObjectRef
	FileType string
	Record   *report.Record
	Sums     report.Sums
	Saved    db.SaveResult
}

// utf8BOM is stripped from content before dispatch so both encodings see the
// same bytes.
var utf8BOM = []byte("\xef\xbb\xbf")

// Process runs every stage for ref. On failure the returned error is an
// *types.AppError whose details name the failing stage (see StageOf).
func (in *Ingestor) Process(ctx context.Context, ref types.ObjectRef) (*Result, error) {
	res := &Result{Ref: ref}

	fileType, err := in.Objects.FileType(ctx, ref)
	if err != nil {
		return nil, stageError(types.StageTag, "", err)
	}
	res.FileType = fileType

	content, err := in.Objects.Content(ctx, ref)
	if err != nil {
		return nil, stageError(types.StageContent, fileType, err)
	}
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(content) == 0 {
		return nil, stageError(types.StageContent, fileType,
			types.NewAppError(types.ErrCodeInputEmptyContent, fmt.Sprintf("object %s is empty", ref), nil))
	}

	parser, err := report.ParserFor(fileType)
	if err != nil {
		return nil, stageError(types.StageDispatch, fileType, err)
	}

	rec, err := parser.Parse(content)
	if err != nil {
		return nil, stageError(types.StageParse, fileType, err)
	}
	res.Record = rec
	res.Sums = report.ShotSums(rec.Vaccines)

	in.Log.DebugContext(ctx, "Report parsed",
		"file_type", fileType,
		"site_id", rec.Site.ID.Value,
		"brands", len(rec.Vaccines),
		"first_shot", res.Sums.FirstShot,
		"second_shot", res.Sums.SecondShot,
	)

	saved, err := in.Store.Save(ctx, rec)
	if err != nil {
		return nil, stageError(types.StagePersist, fileType, err)
	}
	res.Saved = saved

	return res, nil
}

// stageError normalizes err into an AppError carrying the stage and, when
// known, the file type.
func stageError(stage types.Stage, fileType string, err error) *types.AppError {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "unexpected failure", err)
	}
	details := map[string]any{"stage": stage}
	if fileType != "" {
		details["file_type"] = fileType
	}
	return appErr.WithDetails(details)
}

// StageOf returns the stage recorded on err, or StageEvent when none is.
func StageOf(err error) types.Stage {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		if s, ok := appErr.Details["stage"].(types.Stage); ok {
			return s
		}
	}
	return types.StageEvent
}

func (in *Ingestor) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func (in *Ingestor) newID() string {
	if in.NewID != nil {
		return in.NewID()
	}
	return uuid.NewString()
}
