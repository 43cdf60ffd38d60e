package transcode

import (
	"context"
	"fmt"
	"time"

	"clipflow/logger"
	"clipflow/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

// JobAPI is the part of the MediaConvert client the submitter needs.
type JobAPI interface {
	CreateJob(ctx context.Context, params *mediaconvert.CreateJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error)
}

// EndpointAPI resolves the account specific MediaConvert endpoint.
type EndpointAPI interface {
	DescribeEndpoints(ctx context.Context, params *mediaconvert.DescribeEndpointsInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.DescribeEndpointsOutput, error)
}

// NewMediaConvertClient builds the client once for the life of the process.
// A configured endpoint wins; otherwise the endpoint is discovered when
// discovery is enabled, and the regional default is used when it is not.
func NewMediaConvertClient(ctx context.Context, cfg aws.Config, endpoint string, discover bool) (*mediaconvert.Client, error) {
	if endpoint == "" && discover {
		resolved, err := ResolveEndpoint(ctx, mediaconvert.NewFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		endpoint = resolved
	}
	if endpoint == "" {
		logger.Debugf("Using regional MediaConvert endpoint for %s", cfg.Region)
		return mediaconvert.NewFromConfig(cfg), nil
	}
	logger.Infof("Using MediaConvert endpoint %s", endpoint)
	return mediaconvert.NewFromConfig(cfg, func(o *mediaconvert.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	}), nil
}

// ResolveEndpoint asks MediaConvert for the account endpoint.
func ResolveEndpoint(ctx context.Context, api EndpointAPI) (string, error) {
	out, err := api.DescribeEndpoints(ctx, &mediaconvert.DescribeEndpointsInput{
		Mode: types.DescribeEndpointsModeDefault,
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe MediaConvert endpoints: %w", err)
	}
	for _, ep := range out.Endpoints {
		if url := aws.ToString(ep.Url); url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("no MediaConvert endpoint returned")
}

// Submitter turns classified assets into MediaConvert jobs.
type Submitter struct {
	api     JobAPI
	profile Profile
	target  Target
	now     func() time.Time
}

func NewSubmitter(api JobAPI, profile Profile, target Target) *Submitter {
	return &Submitter{api: api, profile: profile, target: target, now: time.Now}
}

func (s *Submitter) Profile() Profile { return s.profile }

// OutputPath reports where the converted file for asset will be written.
func (s *Submitter) OutputPath(asset models.MediaAsset) string {
	return OutputPath(asset, s.profile, s.target.Bucket)
}

// Submit creates one transcode job. Any failure is fatal for the asset and
// is not retried.
func (s *Submitter) Submit(ctx context.Context, asset models.MediaAsset) (models.TranscodeJob, error) {
	input, err := BuildJob(asset, asset.Format, s.profile, s.target)
	if err != nil {
		return models.TranscodeJob{}, models.Fatal("transcode", "", err, "failed to build job for %s", asset.URI())
	}
	out, err := s.api.CreateJob(ctx, input)
	if err != nil {
		return models.TranscodeJob{}, models.Fatal("transcode", "", err, "failed to submit job for %s", asset.URI())
	}
	if out == nil || out.Job == nil || aws.ToString(out.Job.Id) == "" {
		return models.TranscodeJob{}, models.Fatal("transcode", "", nil, "transcoder returned no job id for %s", asset.URI())
	}

	now := s.now().UTC()
	job := models.TranscodeJob{
		ID:        aws.ToString(out.Job.Id),
		Source:    asset,
		Profile:   s.profile.Name,
		Status:    models.JobStatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	logger.Infof("Submitted transcode job %s for %s (%s)", job.ID, asset.URI(), asset.Format)
	return job, nil
}
