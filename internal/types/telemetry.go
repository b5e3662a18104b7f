package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricIngestSucceeded = "IngestSucceeded"
	MetricIngestFailed    = "IngestFailed"

	// Dimension Keys
	DimFileType = "FileType"
	DimOutcome  = "Outcome"
	DimStage    = "Stage"
	DimCategory = "Category"
)

// File type tag contract shared by the uploader and the ingestion pipeline.
const (
	// FileTypeTagKey is the object tag carrying the payload encoding.
	FileTypeTagKey = "File-Type"

	FileTypeXML  = "xml"
	FileTypeJSON = "json"
)
