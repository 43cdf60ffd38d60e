package transcode

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"clipflow/format"
	"clipflow/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

type fakeJobAPI struct {
	input *mediaconvert.CreateJobInput
	id    string
	err   error
}

func (f *fakeJobAPI) CreateJob(ctx context.Context, in *mediaconvert.CreateJobInput, _ ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &mediaconvert.CreateJobOutput{Job: &types.Job{Id: aws.String(f.id)}}, nil
}

type fakeEndpointAPI struct {
	urls []string
	err  error
}

func (f *fakeEndpointAPI) DescribeEndpoints(ctx context.Context, in *mediaconvert.DescribeEndpointsInput, _ ...func(*mediaconvert.Options)) (*mediaconvert.DescribeEndpointsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &mediaconvert.DescribeEndpointsOutput{}
	for _, u := range f.urls {
		out.Endpoints = append(out.Endpoints, types.Endpoint{Url: aws.String(u)})
	}
	return out, nil
}

func standardProfile(t *testing.T) Profile {
	t.Helper()
	p, err := NewProfile(VariantStandardize, "converted")
	if err != nil {
		t.Fatalf("NewProfile failed: %v", err)
	}
	return p
}

func TestProfileVariantsDifferOnlyInModifier(t *testing.T) {
	std := standardProfile(t)
	sd, err := NewProfile(VariantSD, "/converted/")
	if err != nil {
		t.Fatalf("NewProfile failed: %v", err)
	}
	if std.NameModifier != "_converted" || sd.NameModifier != "_SD" {
		t.Errorf("Unexpected modifiers %q / %q", std.NameModifier, sd.NameModifier)
	}
	sd.NameModifier = std.NameModifier
	sd.Name = std.Name
	if sd != std {
		t.Errorf("Expected variants to share every other field, got %+v vs %+v", sd, std)
	}
	if _, err := NewProfile("hd", "converted"); err == nil {
		t.Error("Expected error for unknown variant")
	}
}

func TestBuildJobForMatroskaClip(t *testing.T) {
	tag, ok := format.Classify("clip.MKV")
	if !ok || tag != "Matroska" {
		t.Fatalf("Expected Matroska, got %q", tag)
	}
	asset := models.MediaAsset{Bucket: "in", Key: "uploads/clip.MKV", Format: tag}
	p := standardProfile(t)

	in, err := BuildJob(asset, tag, p, Target{Role: "arn:aws:iam::1:role/mc", Bucket: "out"})
	if err != nil {
		t.Fatalf("BuildJob failed: %v", err)
	}
	if got := aws.ToString(in.Settings.Inputs[0].FileInput); got != "s3://in/uploads/clip.MKV" {
		t.Errorf("Expected input s3://in/uploads/clip.MKV, got %s", got)
	}
	if in.Settings.Inputs[0].TimecodeSource != types.InputTimecodeSourceZerobased {
		t.Errorf("Expected zero based timecode, got %s", in.Settings.Inputs[0].TimecodeSource)
	}
	group := in.Settings.OutputGroups[0]
	if got := aws.ToString(group.OutputGroupSettings.FileGroupSettings.Destination); got != "s3://out/converted/clip" {
		t.Errorf("Expected destination s3://out/converted/clip, got %s", got)
	}
	if got := OutputPath(asset, p, "out"); got != "s3://out/converted/clip_converted.mp4" {
		t.Errorf("Expected output s3://out/converted/clip_converted.mp4, got %s", got)
	}

	out := group.Outputs[0]
	vd := out.VideoDescription
	if aws.ToInt32(vd.Width) != 720 || aws.ToInt32(vd.Height) != 480 {
		t.Errorf("Expected 720x480, got %dx%d", aws.ToInt32(vd.Width), aws.ToInt32(vd.Height))
	}
	h264 := vd.CodecSettings.H264Settings
	if vd.CodecSettings.Codec != types.VideoCodecH264 {
		t.Errorf("Expected H_264, got %s", vd.CodecSettings.Codec)
	}
	if h264.RateControlMode != types.H264RateControlModeCbr || aws.ToInt32(h264.Bitrate) != 2000000 {
		t.Errorf("Expected CBR 2Mbps, got %s %d", h264.RateControlMode, aws.ToInt32(h264.Bitrate))
	}
	if aws.ToFloat64(h264.GopSize) != 90 || h264.CodecProfile != types.H264CodecProfileMain {
		t.Errorf("Unexpected GOP settings %v %s", aws.ToFloat64(h264.GopSize), h264.CodecProfile)
	}
	aac := out.AudioDescriptions[0].CodecSettings.AacSettings
	if out.AudioDescriptions[0].CodecSettings.Codec != types.AudioCodecAac || aws.ToInt32(aac.Bitrate) != 128000 {
		t.Errorf("Expected AAC 128k, got %d", aws.ToInt32(aac.Bitrate))
	}
	if aac.CodingMode != types.AacCodingModeCodingMode20 || aws.ToInt32(aac.SampleRate) != 48000 {
		t.Errorf("Unexpected audio layout %s %d", aac.CodingMode, aws.ToInt32(aac.SampleRate))
	}
	if out.ContainerSettings.Container != types.ContainerTypeMp4 {
		t.Errorf("Expected MP4 container, got %s", out.ContainerSettings.Container)
	}
	if in.UserMetadata["InputFormat"] != "Matroska" || in.UserMetadata["OutputFormat"] != "MP4" {
		t.Errorf("Unexpected metadata %v", in.UserMetadata)
	}
	if in.UserMetadata["SourceKey"] != "uploads/clip.MKV" {
		t.Errorf("Expected source key in metadata, got %v", in.UserMetadata)
	}
	if in.Queue != nil {
		t.Errorf("Expected no queue, got %s", aws.ToString(in.Queue))
	}
}

func TestBuildJobValidatesTarget(t *testing.T) {
	p := standardProfile(t)
	asset := models.MediaAsset{Bucket: "in", Key: "a.mov"}
	if _, err := BuildJob(asset, "QuickTime", p, Target{Bucket: "out"}); err == nil {
		t.Error("Expected error without role")
	}
	if _, err := BuildJob(asset, "QuickTime", p, Target{Role: "r"}); err == nil {
		t.Error("Expected error without output bucket")
	}
	if _, err := BuildJob(models.MediaAsset{Key: "a.mov"}, "QuickTime", p, Target{Role: "r", Bucket: "out"}); err == nil {
		t.Error("Expected error without source bucket")
	}
}

func TestSubmitReturnsJob(t *testing.T) {
	api := &fakeJobAPI{id: "1700000000000-abc123"}
	s := NewSubmitter(api, standardProfile(t), Target{Role: "r", Bucket: "out", Queue: "q"})
	job, err := s.Submit(context.Background(), models.MediaAsset{Bucket: "in", Key: "clip.mkv", Format: "Matroska"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.ID != "1700000000000-abc123" || job.Status != models.JobStatusSubmitted {
		t.Errorf("Unexpected job %+v", job)
	}
	if aws.ToString(api.input.Queue) != "q" {
		t.Errorf("Expected queue q, got %s", aws.ToString(api.input.Queue))
	}
}

func TestSubmitFailureIsFatal(t *testing.T) {
	api := &fakeJobAPI{err: errors.New("throttled")}
	s := NewSubmitter(api, standardProfile(t), Target{Role: "r", Bucket: "out"})
	_, err := s.Submit(context.Background(), models.MediaAsset{Bucket: "in", Key: "clip.mkv", Format: "Matroska"})
	if err == nil {
		t.Fatal("Expected error")
	}
	if models.StatusFor(err) != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", models.StatusFor(err))
	}
}

func TestResolveEndpoint(t *testing.T) {
	url, err := ResolveEndpoint(context.Background(), &fakeEndpointAPI{urls: []string{"", "https://abcd.mediaconvert.us-east-1.amazonaws.com"}})
	if err != nil {
		t.Fatalf("ResolveEndpoint failed: %v", err)
	}
	if url != "https://abcd.mediaconvert.us-east-1.amazonaws.com" {
		t.Errorf("Unexpected endpoint %s", url)
	}
	if _, err := ResolveEndpoint(context.Background(), &fakeEndpointAPI{}); err == nil {
		t.Error("Expected error for empty endpoint list")
	}
	if _, err := ResolveEndpoint(context.Background(), &fakeEndpointAPI{err: errors.New("denied")}); err == nil {
		t.Error("Expected error to propagate")
	}
}
