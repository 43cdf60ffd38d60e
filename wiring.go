package main

import (
	"context"
	"fmt"
	"time"

	"clipflow/analysis"
	"clipflow/analysis/rekognition"
	"clipflow/analysis/transcribe"
	"clipflow/analysis/twelvelabs"
	"clipflow/config"
	"clipflow/failures"
	"clipflow/fanout"
	"clipflow/job"
	"clipflow/logger"
	"clipflow/poll"
	"clipflow/results"
	"clipflow/success"
	taskqueue "clipflow/taskQueue"
	"clipflow/transcode"
	writerbackends "clipflow/writerBackends"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awsrekognition "github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstranscribe "github.com/aws/aws-sdk-go-v2/service/transcribe"
)

// openStores opens the registry and both ledgers and returns a function that
// closes them again.
func openStores() (func(), error) {
	logger.Debug("Initializing transcode registry")
	if err := taskqueue.OpenRegistryDB(); err != nil {
		return nil, fmt.Errorf("failed to open transcode registry: %w", err)
	}
	logger.Debug("Initializing failures database")
	if err := failures.Init(config.GetFailuresDBPath()); err != nil {
		taskqueue.CloseRegistryDB()
		return nil, fmt.Errorf("failed to initialize failure store: %w", err)
	}
	logger.Debug("Initializing success database")
	if err := success.Init(config.GetSuccessDBPath()); err != nil {
		failures.Close()
		taskqueue.CloseRegistryDB()
		return nil, fmt.Errorf("failed to initialize success store: %w", err)
	}
	logger.Infof("Stores opened under %s", config.GetDataDir())

	return func() {
		if err := success.Close(); err != nil {
			logger.Warnf("Failed to close success store: %v", err)
		}
		if err := failures.Close(); err != nil {
			logger.Warnf("Failed to close failure store: %v", err)
		}
		if err := taskqueue.CloseRegistryDB(); err != nil {
			logger.Warnf("Failed to close transcode registry: %v", err)
		}
	}, nil
}

// stages selects which pipeline parts buildPipeline wires.
type stages struct {
	upload     bool
	completion bool
	analysis   bool
}

var allStages = stages{upload: true, completion: true, analysis: true}

// buildPipeline constructs every client once and injects it into the
// pipeline. Stages whose settings are missing are left unwired and answer
// with a fatal "not configured" error when invoked.
func buildPipeline(ctx context.Context, cfg *config.Config, want stages) (*job.Pipeline, error) {
	awsCfg, err := cfg.AWS(ctx)
	if err != nil {
		return nil, err
	}

	opts := []job.Option{job.WithPublishFailureFatal(cfg.PublishFailureFatal)}

	if want.upload {
		sub, err := newSubmitter(ctx, cfg, awsCfg)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			opts = append(opts, job.WithSubmitter(sub))
		}
	}

	if want.completion {
		pub := fanout.NewEventBridgePublisher(eventbridge.NewFromConfig(awsCfg), cfg.EventBusName, cfg.EventSource, cfg.EventDetailType)
		opts = append(opts, job.WithDispatcher(fanout.NewDispatcher(pub, cfg.AnalysisBucket, cfg.AnalysisTypes)))
	}

	if want.analysis {
		coordinators, err := newCoordinators(ctx, cfg, awsCfg)
		if err != nil {
			return nil, err
		}
		for _, c := range coordinators {
			opts = append(opts, job.WithCoordinator(c))
		}
	}

	return job.New(opts...), nil
}

func newSubmitter(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (*transcode.Submitter, error) {
	if cfg.MediaConvertRoleARN == "" || cfg.OutputBucket == "" {
		logger.Warn("MediaConvert role or output bucket not configured; uploads will not be transcoded")
		return nil, nil
	}
	profile, err := transcode.NewProfile(transcode.Variant(cfg.ProfileVariant), cfg.OutputPrefix)
	if err != nil {
		return nil, err
	}
	client, err := transcode.NewMediaConvertClient(ctx, awsCfg, cfg.MediaConvertEndpoint, cfg.DiscoverEndpoint)
	if err != nil {
		return nil, err
	}
	logger.Infof("Transcoding with profile %s into s3://%s/%s", profile, cfg.OutputBucket, cfg.OutputPrefix)
	return transcode.NewSubmitter(client, profile, transcode.Target{
		Role:   cfg.MediaConvertRoleARN,
		Bucket: cfg.OutputBucket,
		Queue:  cfg.MediaConvertQueue,
	}), nil
}

// resultBackendOptions fills in the bucket or directory the result backend
// needs when the options leave it out.
func resultBackendOptions(cfg *config.Config) map[string]string {
	opts := make(map[string]string, len(cfg.ResultBackendOptions)+1)
	for k, v := range cfg.ResultBackendOptions {
		opts[k] = v
	}
	switch cfg.ResultBackend {
	case "s3":
		if opts["bucket"] == "" {
			opts["bucket"] = cfg.AnalysisBucket
		}
	case "local":
		if opts["baseDir"] == "" {
			opts["baseDir"] = config.GetLocalResultsDir()
		}
	}
	return opts
}

func newCoordinators(ctx context.Context, cfg *config.Config, awsCfg aws.Config) ([]*analysis.Coordinator, error) {
	backend, err := writerbackends.Open(ctx, cfg.ResultBackend, resultBackendOptions(cfg), awsCfg)
	if err != nil {
		return nil, err
	}
	store := results.NewPersister(backend)
	logger.Infof("Analysis results go to the %s backend", backend.Name())

	tracker := analysis.NewTracker()
	copts := analysis.Options{
		Policy:         poll.Policy{Interval: cfg.PollInterval, MaxWait: cfg.MaxWait},
		Workers:        cfg.Workers,
		ReleaseTimeout: 30 * time.Second,
	}

	s3Client := s3.NewFromConfig(awsCfg)
	coordinators := []*analysis.Coordinator{
		analysis.NewCoordinator(rekognition.New(awsrekognition.NewFromConfig(awsCfg)), store, tracker, copts),
		analysis.NewCoordinator(transcribe.New(awstranscribe.NewFromConfig(awsCfg), s3Client, transcribe.Options{
			OutputBucket: cfg.AnalysisBucket,
			Language:     cfg.TranscribeLanguage,
		}), store, tracker, copts),
	}

	if cfg.TwelveLabsAPIKey == "" {
		logger.Warn("Twelve Labs API key not configured; twelvelabs analysis disabled")
		return coordinators, nil
	}
	client := twelvelabs.NewClient(cfg.TwelveLabsAPIKey, twelvelabs.WithBaseURL(cfg.TwelveLabsBaseURL))
	tl := twelvelabs.New(client, twelvelabs.Options{
		Engine:    cfg.TwelveLabsEngine,
		Policy:    copts.Policy,
		Presigner: s3.NewPresignClient(s3Client),
	})
	return append(coordinators, analysis.NewCoordinator(tl, store, tracker, copts)), nil
}
