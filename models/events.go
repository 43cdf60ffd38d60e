package models

import (
	"encoding/json"
	"time"
)

// Event sources seen on the bus.
const (
	SourceS3           = "aws.s3"
	SourceMediaConvert = "aws.mediaconvert"
)

// Envelope is the EventBridge event wrapper around every notification.
type Envelope struct {
	ID         string          `json:"id,omitempty"`
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Time       time.Time       `json:"time,omitempty"`
	Detail     json.RawMessage `json:"detail"`
}

// UploadNotification is the detail of an S3 "Object Created" event.
type UploadNotification struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key  string `json:"key"`
		Size int64  `json:"size,omitempty"`
	} `json:"object"`
}

// CompletionNotification is the detail of a MediaConvert job state change.
type CompletionNotification struct {
	JobID              string             `json:"jobId"`
	Status             string             `json:"status"`
	ErrorCode          int                `json:"errorCode,omitempty"`
	ErrorMessage       string             `json:"errorMessage,omitempty"`
	UserMetadata       map[string]string  `json:"userMetadata,omitempty"`
	OutputGroupDetails []OutputGroupDetail `json:"outputGroupDetails,omitempty"`
}

type OutputGroupDetail struct {
	Type          string         `json:"type,omitempty"`
	OutputDetails []OutputDetail `json:"outputDetails,omitempty"`
}

type OutputDetail struct {
	OutputFilePaths []string `json:"outputFilePaths,omitempty"`
	DurationInMs    int64    `json:"durationInMs,omitempty"`
}

// FanoutEvent is the single contract between the transcoding side and every
// analyzer. One is created per completed transcode job.
type FanoutEvent struct {
	MediaConvertJobID string          `json:"mediaconvert_job_id"`
	ConvertedFiles    []string        `json:"converted_files"`
	AnalysisBucket    string          `json:"analysis_bucket"`
	Timestamp         string          `json:"timestamp"`
	OriginalDetail    json.RawMessage `json:"original_detail,omitempty"`
	AnalysisTypes     []string        `json:"analysis_types"`
}

// Requests reports whether the event asks for the given analyzer kind.
func (e FanoutEvent) Requests(kind AnalyzerKind) bool {
	for _, t := range e.AnalysisTypes {
		if t == string(kind) {
			return true
		}
	}
	return false
}
