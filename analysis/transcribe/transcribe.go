// Package transcribe runs Amazon Transcribe jobs against converted files and
// gathers the transcripts they produce.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"clipflow/analysis"
	"clipflow/logger"
	"clipflow/models"
	"clipflow/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
)

const (
	CapabilityTranscription = "transcription"
	CapabilityLanguageID    = "language_identification"
	CapabilityRedaction     = "content_redaction"
)

const (
	maxJobName           = 200
	transcriptionSpeaker = 10
	secondarySpeakers    = 5
	maxAlternatives      = 3
)

var languageOptions = []types.LanguageCode{"ko-KR", "en-US", "ja-JP", "zh-CN"}

var unsafeName = regexp.MustCompile(`[^0-9A-Za-z._-]+`)

// API is the subset of the Transcribe client used here.
type API interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
	DeleteTranscriptionJob(ctx context.Context, params *transcribe.DeleteTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.DeleteTranscriptionJobOutput, error)
}

// ObjectAPI reads transcripts and subtitles Transcribe wrote to our bucket.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	// OutputBucket receives transcripts and subtitles. When empty Transcribe
	// keeps them in its own bucket and they are fetched by presigned URL.
	OutputBucket string
	Language     string
	HTTPClient   *http.Client
}

type Analyzer struct {
	api     API
	objects ObjectAPI
	opts    Options
	now     func() time.Time
}

func New(api API, objects ObjectAPI, opts Options) *Analyzer {
	if opts.Language == "" {
		opts.Language = "ko-KR"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: time.Minute}
	}
	return &Analyzer{api: api, objects: objects, opts: opts, now: time.Now}
}

var (
	_ analysis.Analyzer         = (*Analyzer)(nil)
	_ analysis.Releaser         = (*Analyzer)(nil)
	_ analysis.SidecarCollector = (*Analyzer)(nil)
)

func (a *Analyzer) Kind() models.AnalyzerKind { return models.KindTranscribe }

func (a *Analyzer) Capabilities() []string {
	return []string{CapabilityTranscription, CapabilityLanguageID, CapabilityRedaction}
}

func (a *Analyzer) Resolve(ctx context.Context, artifact string) (models.SourceRef, error) {
	return analysis.S3Source(artifact)
}

// JobName builds a Transcribe job name from the capability, the current time
// and the object key. Names only allow [0-9A-Za-z._-].
func (a *Analyzer) JobName(capability, key string) (string, error) {
	prefix := map[string]string{
		CapabilityTranscription: "transcribe",
		CapabilityLanguageID:    "langid",
		CapabilityRedaction:     "redact",
	}[capability]
	if prefix == "" {
		return "", fmt.Errorf("unknown transcribe capability %q", capability)
	}
	suffix, err := utils.GenerateRNS()
	if err != nil {
		return "", fmt.Errorf("failed to generate job name suffix: %w", err)
	}
	base := strings.Trim(unsafeName.ReplaceAllString(path.Base(key), "-"), "-")
	name := fmt.Sprintf("%s-%s-%s", prefix, a.now().UTC().Format("20060102-150405"), base)
	if len(name) > maxJobName-len(suffix)-1 {
		name = name[:maxJobName-len(suffix)-1]
	}
	return name + "-" + suffix, nil
}

func (a *Analyzer) Start(ctx context.Context, src models.SourceRef, capability string) (models.AnalysisSubJob, error) {
	name, err := a.JobName(capability, src.Key)
	if err != nil {
		return models.AnalysisSubJob{}, err
	}

	in := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
		Media:                &types.Media{MediaFileUri: aws.String(src.Artifact)},
		MediaFormat:          types.MediaFormatMp4,
	}
	if a.opts.OutputBucket != "" {
		in.OutputBucketName = aws.String(a.opts.OutputBucket)
		in.OutputKey = aws.String("transcribe/" + name + "/")
	}

	switch capability {
	case CapabilityTranscription:
		in.LanguageCode = types.LanguageCode(a.opts.Language)
		in.Settings = &types.Settings{
			ShowSpeakerLabels: aws.Bool(true),
			MaxSpeakerLabels:  aws.Int32(transcriptionSpeaker),
			ShowAlternatives:  aws.Bool(true),
			MaxAlternatives:   aws.Int32(maxAlternatives),
		}
		in.Subtitles = &types.Subtitles{
			Formats:          []types.SubtitleFormat{types.SubtitleFormatVtt, types.SubtitleFormatSrt},
			OutputStartIndex: aws.Int32(1),
		}
	case CapabilityLanguageID:
		in.IdentifyLanguage = aws.Bool(true)
		in.LanguageOptions = languageOptions
		in.Settings = &types.Settings{ShowSpeakerLabels: aws.Bool(true), MaxSpeakerLabels: aws.Int32(secondarySpeakers)}
	case CapabilityRedaction:
		in.LanguageCode = types.LanguageCode(a.opts.Language)
		in.ContentRedaction = &types.ContentRedaction{
			RedactionType:   types.RedactionTypePii,
			RedactionOutput: types.RedactionOutputRedactedAndUnredacted,
		}
		in.Settings = &types.Settings{ShowSpeakerLabels: aws.Bool(true), MaxSpeakerLabels: aws.Int32(secondarySpeakers)}
	}

	if _, err := a.api.StartTranscriptionJob(ctx, in); err != nil {
		return models.AnalysisSubJob{}, fmt.Errorf("failed to start transcription job %s: %w", name, err)
	}
	return models.AnalysisSubJob{ExternalID: name, Status: models.SubJobRunning}, nil
}

func (a *Analyzer) Check(ctx context.Context, job models.AnalysisSubJob) (bool, interface{}, error) {
	out, err := a.api.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{TranscriptionJobName: aws.String(job.ExternalID)})
	if err != nil {
		return false, nil, err
	}
	tj := out.TranscriptionJob
	if tj == nil {
		return false, nil, fmt.Errorf("transcription job %s not returned", job.ExternalID)
	}
	switch tj.TranscriptionJobStatus {
	case types.TranscriptionJobStatusCompleted:
	case types.TranscriptionJobStatusFailed:
		return false, nil, fmt.Errorf("transcription job %s failed: %s", job.ExternalID, aws.ToString(tj.FailureReason))
	default:
		return false, nil, nil
	}

	switch job.Capability {
	case CapabilityTranscription:
		if tj.Transcript == nil {
			return false, nil, fmt.Errorf("transcription job %s has no transcript", job.ExternalID)
		}
		summary, err := a.summary(ctx, aws.ToString(tj.Transcript.TranscriptFileUri))
		if err != nil {
			return false, nil, err
		}
		res := &TranscriptionResult{Transcript: summary}
		if tj.Subtitles != nil {
			res.SubtitleFiles = tj.Subtitles.SubtitleFileUris
		}
		return true, res, nil
	case CapabilityLanguageID:
		res := &LanguageResult{LanguageCode: string(tj.LanguageCode)}
		if tj.IdentifiedLanguageScore != nil {
			res.IdentifiedLanguageScore = *tj.IdentifiedLanguageScore
		}
		for _, lc := range tj.LanguageCodes {
			res.LanguageCodes = append(res.LanguageCodes, LanguageDuration{
				LanguageCode:      string(lc.LanguageCode),
				DurationInSeconds: aws.ToFloat32(lc.DurationInSeconds),
			})
		}
		return true, res, nil
	case CapabilityRedaction:
		if tj.Transcript == nil || tj.Transcript.RedactedTranscriptFileUri == nil {
			return false, nil, fmt.Errorf("transcription job %s has no redacted transcript", job.ExternalID)
		}
		summary, err := a.summary(ctx, aws.ToString(tj.Transcript.RedactedTranscriptFileUri))
		if err != nil {
			return false, nil, err
		}
		return true, &RedactionResult{RedactedTranscript: summary}, nil
	}
	return false, nil, fmt.Errorf("unknown transcribe capability %q", job.Capability)
}

// Release deletes the Transcribe job. Output files in our bucket are kept.
func (a *Analyzer) Release(ctx context.Context, job models.AnalysisSubJob) error {
	if job.ExternalID == "" {
		return nil
	}
	_, err := a.api.DeleteTranscriptionJob(ctx, &transcribe.DeleteTranscriptionJobInput{TranscriptionJobName: aws.String(job.ExternalID)})
	return err
}

// Sidecars returns the subtitle files of a finished transcription. When
// Transcribe produced none, an SRT is built from the transcript items.
func (a *Analyzer) Sidecars(ctx context.Context, job models.AnalysisSubJob) []models.Sidecar {
	res, ok := job.Result.(*TranscriptionResult)
	if !ok || res == nil {
		return nil
	}

	var out []models.Sidecar
	for _, uri := range res.SubtitleFiles {
		body, err := a.fetch(ctx, uri)
		if err != nil {
			logger.Warnf("Failed to fetch subtitle %s: %v", uri, err)
			continue
		}
		name := subtitleName(uri)
		out = append(out, models.Sidecar{Name: name, ContentType: subtitleType(name), Body: body})
	}
	if len(out) == 0 && res.Transcript != nil {
		if srt := BuildSRT(res.Transcript.Items); srt != "" {
			out = append(out, models.Sidecar{Name: job.ExternalID + ".srt", ContentType: subtitleType(".srt"), Body: []byte(srt)})
		}
	}
	return out
}

func (a *Analyzer) summary(ctx context.Context, uri string) (*Summary, error) {
	body, err := a.fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to download transcript: %w", err)
	}
	return Summarize(body)
}

// fetch reads a Transcribe output file. Files in our output bucket are read
// through S3; anything else is a presigned URL.
func (a *Analyzer) fetch(ctx context.Context, uri string) ([]byte, error) {
	if bucket, key, ok := s3Location(uri); ok && a.objects != nil && bucket == a.opts.OutputBucket {
		obj, err := a.objects.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
		}
		defer obj.Body.Close()
		return io.ReadAll(obj.Body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching transcript", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// s3Location extracts bucket and key from s3:// URIs and path or
// virtual-hosted style S3 URLs.
func s3Location(uri string) (string, string, bool) {
	if strings.HasPrefix(uri, "s3://") {
		bucket, key, err := analysis.ParseS3URI(uri)
		return bucket, key, err == nil
	}
	u, err := url.Parse(uri)
	if err != nil || !strings.HasSuffix(u.Host, ".amazonaws.com") {
		return "", "", false
	}
	p := strings.TrimPrefix(u.Path, "/")
	if strings.HasPrefix(u.Host, "s3.") || strings.HasPrefix(u.Host, "s3-") {
		bucket, key, ok := strings.Cut(p, "/")
		return bucket, key, ok && bucket != "" && key != ""
	}
	if i := strings.Index(u.Host, ".s3."); i > 0 && p != "" {
		return u.Host[:i], p, true
	}
	return "", "", false
}

func subtitleName(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(uri)
}

func subtitleType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".vtt":
		return "text/vtt"
	case ".srt":
		return "application/x-subrip"
	}
	return "application/octet-stream"
}
