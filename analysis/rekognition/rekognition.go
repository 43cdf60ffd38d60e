// Package rekognition runs Amazon Rekognition Video analyses against
// converted files stored in S3.
package rekognition

import (
	"context"
	"fmt"

	"clipflow/analysis"
	"clipflow/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

const (
	CapabilityLabels     = "labels"
	CapabilityFaces      = "faces"
	CapabilityText       = "text"
	CapabilityModeration = "moderation"
)

const (
	labelMinConfidence      = 70
	moderationMinConfidence = 60
	pageSize                = 1000
)

// API is the subset of the Rekognition client used here.
type API interface {
	StartLabelDetection(ctx context.Context, params *rekognition.StartLabelDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.StartLabelDetectionOutput, error)
	GetLabelDetection(ctx context.Context, params *rekognition.GetLabelDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.GetLabelDetectionOutput, error)
	StartFaceDetection(ctx context.Context, params *rekognition.StartFaceDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.StartFaceDetectionOutput, error)
	GetFaceDetection(ctx context.Context, params *rekognition.GetFaceDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.GetFaceDetectionOutput, error)
	StartTextDetection(ctx context.Context, params *rekognition.StartTextDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.StartTextDetectionOutput, error)
	GetTextDetection(ctx context.Context, params *rekognition.GetTextDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.GetTextDetectionOutput, error)
	StartContentModeration(ctx context.Context, params *rekognition.StartContentModerationInput, optFns ...func(*rekognition.Options)) (*rekognition.StartContentModerationOutput, error)
	GetContentModeration(ctx context.Context, params *rekognition.GetContentModerationInput, optFns ...func(*rekognition.Options)) (*rekognition.GetContentModerationOutput, error)
}

type Analyzer struct {
	api API
}

func New(api API) *Analyzer {
	return &Analyzer{api: api}
}

var _ analysis.Analyzer = (*Analyzer)(nil)

func (a *Analyzer) Kind() models.AnalyzerKind { return models.KindRekognition }

func (a *Analyzer) Capabilities() []string {
	return []string{CapabilityLabels, CapabilityFaces, CapabilityText, CapabilityModeration}
}

// Resolve only accepts s3:// artifacts; Rekognition reads video from S3.
func (a *Analyzer) Resolve(ctx context.Context, artifact string) (models.SourceRef, error) {
	return analysis.S3Source(artifact)
}

func (a *Analyzer) Start(ctx context.Context, src models.SourceRef, capability string) (models.AnalysisSubJob, error) {
	video := &types.Video{S3Object: &types.S3Object{Bucket: aws.String(src.Bucket), Name: aws.String(src.Key)}}

	var jobID *string
	switch capability {
	case CapabilityLabels:
		out, err := a.api.StartLabelDetection(ctx, &rekognition.StartLabelDetectionInput{
			Video:         video,
			MinConfidence: aws.Float32(labelMinConfidence),
			Features:      []types.LabelDetectionFeatureName{types.LabelDetectionFeatureNameGeneralLabels},
		})
		if err != nil {
			return models.AnalysisSubJob{}, err
		}
		jobID = out.JobId
	case CapabilityFaces:
		out, err := a.api.StartFaceDetection(ctx, &rekognition.StartFaceDetectionInput{
			Video:          video,
			FaceAttributes: types.FaceAttributesAll,
		})
		if err != nil {
			return models.AnalysisSubJob{}, err
		}
		jobID = out.JobId
	case CapabilityText:
		out, err := a.api.StartTextDetection(ctx, &rekognition.StartTextDetectionInput{Video: video})
		if err != nil {
			return models.AnalysisSubJob{}, err
		}
		jobID = out.JobId
	case CapabilityModeration:
		out, err := a.api.StartContentModeration(ctx, &rekognition.StartContentModerationInput{
			Video:         video,
			MinConfidence: aws.Float32(moderationMinConfidence),
		})
		if err != nil {
			return models.AnalysisSubJob{}, err
		}
		jobID = out.JobId
	default:
		return models.AnalysisSubJob{}, fmt.Errorf("unknown rekognition capability %q", capability)
	}

	if aws.ToString(jobID) == "" {
		return models.AnalysisSubJob{}, fmt.Errorf("rekognition returned no job id for %s", capability)
	}
	return models.AnalysisSubJob{ExternalID: aws.ToString(jobID), Status: models.SubJobRunning}, nil
}

// Check reads the job status and, once it has succeeded, every page of
// results.
func (a *Analyzer) Check(ctx context.Context, job models.AnalysisSubJob) (bool, interface{}, error) {
	switch job.Capability {
	case CapabilityLabels:
		return a.checkLabels(ctx, job.ExternalID)
	case CapabilityFaces:
		return a.checkFaces(ctx, job.ExternalID)
	case CapabilityText:
		return a.checkText(ctx, job.ExternalID)
	case CapabilityModeration:
		return a.checkModeration(ctx, job.ExternalID)
	}
	return false, nil, fmt.Errorf("unknown rekognition capability %q", job.Capability)
}

// settled maps a video job status onto the poll contract.
func settled(status types.VideoJobStatus, message *string) (bool, error) {
	switch status {
	case types.VideoJobStatusSucceeded:
		return true, nil
	case types.VideoJobStatusFailed:
		return false, fmt.Errorf("rekognition job failed: %s", aws.ToString(message))
	}
	return false, nil
}

func (a *Analyzer) checkLabels(ctx context.Context, id string) (bool, interface{}, error) {
	labels := []types.LabelDetection{}
	var token *string
	for {
		out, err := a.api.GetLabelDetection(ctx, &rekognition.GetLabelDetectionInput{JobId: aws.String(id), NextToken: token, MaxResults: aws.Int32(pageSize)})
		if err != nil {
			return false, nil, err
		}
		if done, err := settled(out.JobStatus, out.StatusMessage); !done {
			return false, nil, err
		}
		labels = append(labels, out.Labels...)
		if token = out.NextToken; token == nil {
			return true, labels, nil
		}
	}
}

func (a *Analyzer) checkFaces(ctx context.Context, id string) (bool, interface{}, error) {
	faces := []types.FaceDetection{}
	var token *string
	for {
		out, err := a.api.GetFaceDetection(ctx, &rekognition.GetFaceDetectionInput{JobId: aws.String(id), NextToken: token, MaxResults: aws.Int32(pageSize)})
		if err != nil {
			return false, nil, err
		}
		if done, err := settled(out.JobStatus, out.StatusMessage); !done {
			return false, nil, err
		}
		faces = append(faces, out.Faces...)
		if token = out.NextToken; token == nil {
			return true, faces, nil
		}
	}
}

func (a *Analyzer) checkText(ctx context.Context, id string) (bool, interface{}, error) {
	texts := []types.TextDetectionResult{}
	var token *string
	for {
		out, err := a.api.GetTextDetection(ctx, &rekognition.GetTextDetectionInput{JobId: aws.String(id), NextToken: token, MaxResults: aws.Int32(pageSize)})
		if err != nil {
			return false, nil, err
		}
		if done, err := settled(out.JobStatus, out.StatusMessage); !done {
			return false, nil, err
		}
		texts = append(texts, out.TextDetections...)
		if token = out.NextToken; token == nil {
			return true, texts, nil
		}
	}
}

func (a *Analyzer) checkModeration(ctx context.Context, id string) (bool, interface{}, error) {
	labels := []types.ContentModerationDetection{}
	var token *string
	for {
		out, err := a.api.GetContentModeration(ctx, &rekognition.GetContentModerationInput{JobId: aws.String(id), NextToken: token, MaxResults: aws.Int32(pageSize)})
		if err != nil {
			return false, nil, err
		}
		if done, err := settled(out.JobStatus, out.StatusMessage); !done {
			return false, nil, err
		}
		labels = append(labels, out.ModerationLabels...)
		if token = out.NextToken; token == nil {
			return true, labels, nil
		}
	}
}
