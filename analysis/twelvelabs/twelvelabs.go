// Package twelvelabs indexes converted files with Twelve Labs and runs
// search and summarize queries against the indexed video.
package twelvelabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"clipflow/analysis"
	"clipflow/logger"
	"clipflow/models"
	"clipflow/poll"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	CapabilityIndexing    = "video_indexing"
	CapabilityScenes      = "scene_analysis"
	CapabilityActivities  = "activity_recognition"
	CapabilitySummary     = "video_summary"
	CapabilityHighlights  = "highlights"
	CapabilitySearchIndex = "search_index"
)

const (
	taskReady  = "ready"
	taskFailed = "failed"

	sceneQuery    = "Describe all scenes in detail"
	activityQuery = "What activities and actions are happening in the video?"
)

var engineOptions = []string{"visual", "conversation", "text_in_video"}

// SearchQueries are run for the search_index capability.
var SearchQueries = []string{
	"people in the video",
	"objects and items",
	"text and signs",
	"emotions and expressions",
	"locations and settings",
}

// Presigner turns s3:// artifacts into URLs Twelve Labs can download.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Options struct {
	Engine    string
	Policy    poll.Policy // wait for the upload task to become ready
	Presigner Presigner   // nil passes artifacts through unchanged
	URLExpiry time.Duration
}

type Analyzer struct {
	client *Client
	opts   Options
}

func New(client *Client, opts Options) *Analyzer {
	if opts.Engine == "" {
		opts.Engine = "marengo2.6"
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = time.Hour
	}
	return &Analyzer{client: client, opts: opts}
}

var _ analysis.Analyzer = (*Analyzer)(nil)

func (a *Analyzer) Kind() models.AnalyzerKind { return models.KindTwelveLabs }

func (a *Analyzer) Capabilities() []string {
	return []string{CapabilityIndexing, CapabilityScenes, CapabilityActivities, CapabilitySummary, CapabilityHighlights, CapabilitySearchIndex}
}

// Resolve creates an index, uploads the artifact into it and waits until the
// upload task is ready. Every capability then queries the indexed video.
func (a *Analyzer) Resolve(ctx context.Context, artifact string) (models.SourceRef, error) {
	src := models.SourceRef{Artifact: artifact, Attrs: map[string]string{}}
	if bucket, key, err := analysis.ParseS3URI(artifact); err == nil {
		src.Bucket, src.Key = bucket, key
	}

	videoURL, err := a.videoURL(ctx, src)
	if err != nil {
		return models.SourceRef{}, err
	}
	indexID, err := a.client.CreateIndex(ctx, "video_analysis_"+uuid.NewString(), a.opts.Engine, engineOptions)
	if err != nil {
		return models.SourceRef{}, err
	}
	taskID, err := a.client.CreateTask(ctx, indexID, videoURL)
	if err != nil {
		return models.SourceRef{}, err
	}

	var (
		task Task
		raw  json.RawMessage
	)
	err = poll.Until(ctx, a.opts.Policy, func(ctx context.Context) (bool, error) {
		t, r, err := a.client.GetTask(ctx, taskID)
		if err != nil {
			return false, err
		}
		task, raw = t, r
		switch t.Status {
		case taskReady:
			return true, nil
		case taskFailed:
			return false, fmt.Errorf("twelvelabs task %s failed", taskID)
		}
		return false, nil
	})
	if err != nil {
		return models.SourceRef{}, fmt.Errorf("waiting for twelvelabs task %s: %w", taskID, err)
	}
	if task.VideoID == "" {
		return models.SourceRef{}, fmt.Errorf("twelvelabs task %s is ready without a video id", taskID)
	}

	src.Attrs["index_id"] = indexID
	src.Attrs["task_id"] = taskID
	src.Attrs["video_id"] = task.VideoID
	src.Payload = raw
	return src, nil
}

func (a *Analyzer) videoURL(ctx context.Context, src models.SourceRef) (string, error) {
	if a.opts.Presigner == nil || src.Bucket == "" {
		return src.Artifact, nil
	}
	req, err := a.opts.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	}, s3.WithPresignExpires(a.opts.URLExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", src.Artifact, err)
	}
	return req.URL, nil
}

// Start runs the capability to completion; Twelve Labs answers search and
// summarize requests synchronously.
func (a *Analyzer) Start(ctx context.Context, src models.SourceRef, capability string) (models.AnalysisSubJob, error) {
	indexID, videoID := src.Attrs["index_id"], src.Attrs["video_id"]

	var (
		result interface{}
		err    error
	)
	switch capability {
	case CapabilityIndexing:
		result = src.Payload
	case CapabilityScenes:
		result, err = a.client.Search(ctx, indexID, videoID, sceneQuery, []string{"visual", "conversation"})
	case CapabilityActivities:
		result, err = a.client.Search(ctx, indexID, videoID, activityQuery, []string{"visual"})
	case CapabilitySummary:
		result, err = a.client.Summarize(ctx, videoID, "summary")
	case CapabilityHighlights:
		result, err = a.client.Summarize(ctx, videoID, "highlight")
	case CapabilitySearchIndex:
		result, err = a.searchIndex(ctx, indexID, videoID)
	default:
		err = fmt.Errorf("unknown twelvelabs capability %q", capability)
	}
	if err != nil {
		return models.AnalysisSubJob{}, err
	}
	return models.AnalysisSubJob{ExternalID: src.Attrs["task_id"], Status: models.SubJobSucceeded, Result: result}, nil
}

// searchIndex runs every query in SearchQueries. Failed queries are left
// out; the capability fails only when none answered.
func (a *Analyzer) searchIndex(ctx context.Context, indexID, videoID string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	var failed []string
	for _, q := range SearchQueries {
		raw, err := a.client.Search(ctx, indexID, videoID, q, engineOptions)
		if err != nil {
			logger.Warnf("Search %q on video %s failed: %v", q, videoID, err)
			failed = append(failed, q)
			continue
		}
		out[q] = raw
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("all search queries failed: %s", strings.Join(failed, ", "))
	}
	return out, nil
}

func (a *Analyzer) Check(ctx context.Context, job models.AnalysisSubJob) (bool, interface{}, error) {
	return false, nil, errors.New("twelvelabs sub-jobs complete when started")
}
