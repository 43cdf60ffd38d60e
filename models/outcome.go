package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass buckets a stage failure. Expected no-ops are not errors: stages
// return a 200 outcome and a nil error for them.
type ErrorClass int

const (
	ClassInvalid ErrorClass = iota + 1 // malformed or unsupported input
	ClassFatal                         // unrecoverable stage failure
)

// StageError is returned by stage handlers. It carries enough context for an
// operator to trace the asset by job id or storage key.
type StageError struct {
	Class   ErrorClass
	Stage   string
	Message string
	JobID   string
	Err     error
}

func (e *StageError) Error() string {
	msg := e.Stage + ": " + e.Message
	if e.JobID != "" {
		msg += " (job " + e.JobID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// Invalid builds a 400-class error.
func Invalid(stage string, err error, format string, args ...interface{}) *StageError {
	return &StageError{Class: ClassInvalid, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

// Fatal builds a 500-class error.
func Fatal(stage, jobID string, err error, format string, args ...interface{}) *StageError {
	return &StageError{Class: ClassFatal, Stage: stage, JobID: jobID, Message: fmt.Sprintf(format, args...), Err: err}
}

// StatusFor maps an error onto the HTTP-style status code callers expect.
// Errors that are not StageErrors are unrecoverable.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var se *StageError
	if errors.As(err, &se) {
		if se.Class == ClassInvalid {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// Outcome is the structured response of every stage.
type Outcome struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	JobID      string `json:"job_id,omitempty"`

	InputFile         string   `json:"input_file,omitempty"`
	InputFormat       string   `json:"input_format,omitempty"`
	OutputFormat      string   `json:"output_format,omitempty"`
	OutputFiles       []string `json:"output_files,omitempty"`
	AnalysisTriggered *bool    `json:"analysis_triggered,omitempty"`

	AnalysisType       AnalyzerKind `json:"analysis_type,omitempty"`
	AnalyzedFilesCount int          `json:"analyzed_files_count,omitempty"`
	ResultKey          string       `json:"result_key,omitempty"`
}

type outcomeFields Outcome

// MarshalJSON writes output_files whenever the list is set, so a job that
// finished with no outputs reports an empty list rather than omitting it.
func (o Outcome) MarshalJSON() ([]byte, error) {
	wire := struct {
		outcomeFields
		OutputFiles *[]string `json:"output_files,omitempty"`
	}{outcomeFields: outcomeFields(o)}
	if o.OutputFiles != nil {
		wire.OutputFiles = &o.OutputFiles
	}
	return json.Marshal(wire)
}

// OK builds a 200 outcome.
func OK(jobID, format string, args ...interface{}) Outcome {
	return Outcome{StatusCode: http.StatusOK, JobID: jobID, Message: fmt.Sprintf(format, args...)}
}

// Failed turns an error into an outcome with the matching status code.
func Failed(err error) Outcome {
	out := Outcome{StatusCode: StatusFor(err), Error: err.Error()}
	var se *StageError
	if errors.As(err, &se) {
		out.JobID = se.JobID
	}
	return out
}
