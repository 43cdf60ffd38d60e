package models

import "time"

// AnalyzerKind names one independent analysis service family.
type AnalyzerKind string

const (
	KindRekognition AnalyzerKind = "rekognition"
	KindTwelveLabs  AnalyzerKind = "twelvelabs"
	KindTranscribe  AnalyzerKind = "transcribe"
)

// SubJobStatus is the state of one analysis sub-job.
type SubJobStatus string

const (
	SubJobRunning   SubJobStatus = "RUNNING"
	SubJobSucceeded SubJobStatus = "SUCCEEDED"
	SubJobFailed    SubJobStatus = "FAILED"
	SubJobTimedOut  SubJobStatus = "TIMED_OUT"
)

// SourceRef is an artifact resolved into something an analyzer can address.
type SourceRef struct {
	Artifact string            // the converted file path as broadcast
	Bucket   string            // set for s3:// artifacts
	Key      string            // set for s3:// artifacts
	Attrs    map[string]string // analyzer specific handles (index id, video id, ...)
	Payload  interface{}       // analyzer specific data gathered while resolving
}

// AnalysisSubJob is one (kind, capability, artifact) unit of work.
type AnalysisSubJob struct {
	Kind       AnalyzerKind
	Capability string
	Artifact   string
	ExternalID string
	Status     SubJobStatus
	Result     interface{}
	Err        error
	Sidecars   []Sidecar

	Source SourceRef
}

// FileResult is the per-artifact entry of an aggregated result. Capabilities
// that failed are simply missing from AnalysisResult.
type FileResult struct {
	FilePath       string                 `json:"file_path"`
	AnalysisType   AnalyzerKind           `json:"analysis_type"`
	AnalysisResult map[string]interface{} `json:"analysis_result"`
	Timestamp      string                 `json:"timestamp"`
}

// AggregatedResult is what one coordinator invocation persists.
type AggregatedResult struct {
	MediaConvertJobID string       `json:"mediaconvert_job_id"`
	AnalysisType      AnalyzerKind `json:"analysis_type"`
	Timestamp         string       `json:"timestamp"`
	Results           []FileResult `json:"results"`

	CreatedAt time.Time `json:"-"`
}

// Sidecar is an extra artifact written next to a result record.
type Sidecar struct {
	Name        string
	ContentType string
	Body        []byte
}
