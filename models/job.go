package models

import "time"

// MediaAsset is an uploaded source file. Identity is (Bucket, Key).
type MediaAsset struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Format string `json:"format,omitempty"` // classifier tag, e.g. "Matroska"
}

// URI returns the s3:// location of the asset.
func (a MediaAsset) URI() string {
	return "s3://" + a.Bucket + "/" + a.Key
}

// JobStatus is the lifecycle state of a TranscodeJob.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "SUBMITTED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusComplete  JobStatus = "COMPLETE"
	JobStatusError     JobStatus = "ERROR"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// TranscodeJob tracks one external conversion job by the id the transcoder
// assigned to it.
type TranscodeJob struct {
	ID           string     `json:"id"`
	Source       MediaAsset `json:"source"`
	Profile      string     `json:"profile"`
	Status       JobStatus  `json:"status"`
	Outputs      []string   `json:"outputs,omitempty"` // only populated on COMPLETE
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
