package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"vaxingest/internal/types"
)

// ManualTrigger re-processes one object without an S3 notification:
//
//	{"bucket": "reports", "key": "site-7/2021-05-01.xml"}
type ManualTrigger struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Handler is the Lambda entrypoint. It accepts either an S3 ObjectCreated
// event or a ManualTrigger.
//
// Only the first record of an S3 event is processed; any further records are
// logged and dropped. Handler always returns nil: every failure is logged,
// dead-lettered and counted here, and never surfaces to the runtime.
func (in *Ingestor) Handler(ctx context.Context, payload json.RawMessage) error {
	ctx = types.WithInvocationID(ctx, in.invocationID(ctx))
	log := in.Log.With("invocation_id", types.GetInvocationID(ctx))

	ref, manual, err := in.resolve(ctx, log, payload)
	if err != nil {
		log.ErrorContext(ctx, "Notification rejected",
			"stage", string(types.StageEvent),
			"code", string(types.CodeOf(err)),
			"error", err,
		)
		in.publishFailure(ctx, log, types.StageEvent, err)
		return nil
	}
	log = log.With("bucket", ref.Bucket, "key", ref.Key)

	if in.Config.Bucket != "" && ref.Bucket != in.Config.Bucket && !manual {
		err := types.NewAppErrorWithDetails(types.ErrCodeInputForeignBucket,
			"S3 event from unexpected bucket, discarding", nil,
			map[string]any{"expected_bucket": in.Config.Bucket})
		log.ErrorContext(ctx, "S3 event from unexpected bucket, discarding",
			"expected_bucket", in.Config.Bucket,
			"code", string(types.ErrCodeInputForeignBucket),
		)
		in.publishFailure(ctx, log, types.StageEvent, err)
		return nil
	}

	log.InfoContext(ctx, "Processing object", "manual", manual)

	res, err := in.Process(ctx, ref)
	if err != nil {
		in.fail(ctx, log, ref, err)
		return nil
	}

	log.InfoContext(ctx, "Report ingested",
		"file_type", res.FileType,
		"site_id", res.Saved.SiteID,
		"date", res.Saved.Date.Format(time.DateOnly),
		"outcome", string(res.Saved.Outcome),
		"site_created", res.Saved.SiteCreated,
		"first_shot", res.Sums.FirstShot,
		"second_shot", res.Sums.SecondShot,
	)
	if in.Metrics != nil {
		if err := in.Metrics.PublishSuccess(ctx, res.FileType, res.Saved.Outcome); err != nil {
			log.WarnContext(ctx, "Failed to publish success metric", "error", err)
		}
	}
	return nil
}

// resolve extracts the object reference from an S3 event or a manual trigger.
func (in *Ingestor) resolve(ctx context.Context, log *slog.Logger, payload json.RawMessage) (types.ObjectRef, bool, error) {
	var s3Event events.S3Event
	if err := json.Unmarshal(payload, &s3Event); err == nil && len(s3Event.Records) > 0 {
		if extra := len(s3Event.Records) - 1; extra > 0 {
			log.WarnContext(ctx, "S3 event carries multiple records; only the first is processed",
				"ignored_records", extra,
			)
		}
		record := s3Event.Records[0]
		// S3 URL-encodes object keys in notifications. Fall back to the raw
		// key for events without the decoded form.
		key := record.S3.Object.URLDecodedKey
		if key == "" {
			key = record.S3.Object.Key
		}
		ref := types.ObjectRef{Bucket: record.S3.Bucket.Name, Key: key}
		if ref.IsZero() {
			return types.ObjectRef{}, false, types.NewAppError(types.ErrCodeInputMissingNotification,
				"S3 event record has no bucket or key", nil)
		}
		return ref, false, nil
	}

	var trigger ManualTrigger
	if err := json.Unmarshal(payload, &trigger); err != nil {
		return types.ObjectRef{}, false, types.NewAppError(types.ErrCodeInputMissingNotification,
			"payload is neither an S3 event nor a manual trigger", err)
	}
	ref := types.ObjectRef{Bucket: trigger.Bucket, Key: trigger.Key}
	if ref.IsZero() {
		return types.ObjectRef{}, false, types.NewAppError(types.ErrCodeInputMissingNotification,
			"notification names no object", nil)
	}
	return ref, true, nil
}

// fail logs, dead-letters and counts a failed object.
func (in *Ingestor) fail(ctx context.Context, log *slog.Logger, ref types.ObjectRef, err error) {
	stage := StageOf(err)
	code := types.CodeOf(err)
	fileType := ""
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		fileType, _ = appErr.Details["file_type"].(string)
	}

	log.ErrorContext(ctx, "Ingestion failed",
		"stage", string(stage),
		"code", string(code),
		"category", string(code.Category()),
		"file_type", fileType,
		"error", err,
	)

	if in.DeadLetters != nil {
		msg := types.NewDeadLetterMessage(types.GetInvocationID(ctx), ref, fileType, stage, err, in.now())
		if dlqErr := in.DeadLetters.Send(ctx, msg); dlqErr != nil {
			log.ErrorContext(ctx, "Failed to dead-letter object", "error", dlqErr)
		}
	}
	in.publishFailure(ctx, log, stage, err)
}

func (in *Ingestor) publishFailure(ctx context.Context, log *slog.Logger, stage types.Stage, err error) {
	if in.Metrics == nil {
		return
	}
	if mErr := in.Metrics.PublishFailure(ctx, stage, types.CodeOf(err).Category()); mErr != nil {
		log.WarnContext(ctx, "Failed to publish failure metric", "error", mErr)
	}
}

// invocationID prefers the Lambda request id so log lines join up with the
// platform's own records.
func (in *Ingestor) invocationID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return in.newID()
}
