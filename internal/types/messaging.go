package types

import "time"

// Stage names a step of the ingestion pipeline. Every failure is attributed
// to exactly one stage.
type Stage string

const (
	StageEvent    Stage = "event"
	StageTag      Stage = "tag"
	StageContent  Stage = "content"
	StageDispatch Stage = "dispatch"
	StageParse    Stage = "parse"
	StagePersist  Stage = "persist"
)

// DeadLetterMessage is the SQS body published for every object that failed
// ingestion. It carries enough to locate the object and decide whether a
// redrive could succeed. JSON tags use snake_case.
type DeadLetterMessage struct {
	InvocationID string `json:"invocation_id"`
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	FileType     string `json:"file_type,omitempty"`

	Stage     Stage         `json:"stage"`
	Code      ErrorCode     `json:"code"`
	Category  ErrorCategory `json:"category"`
	Retryable bool          `json:"retryable"`
	Message   string        `json:"message"`

	FailedAt time.Time `json:"failed_at"`
}

// NewDeadLetterMessage classifies err and fills in the message for ref.
func NewDeadLetterMessage(invocationID string, ref ObjectRef, fileType string, stage Stage, err error, now time.Time) DeadLetterMessage {
	code := CodeOf(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return DeadLetterMessage{
		InvocationID: invocationID,
		Bucket:       ref.Bucket,
		Key:          ref.Key,
		FileType:     fileType,
		Stage:        stage,
		Code:         code,
		Category:     code.Category(),
		Retryable:    code.Retryable(),
		Message:      msg,
		FailedAt:     now.UTC(),
	}
}
