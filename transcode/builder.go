package transcode

import (
	"fmt"
	"path"
	"strings"

	"clipflow/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

const audioSelector = "Audio Selector 1"

// Target describes where converted output lands and which IAM role the
// transcoder assumes.
type Target struct {
	Role   string
	Bucket string
	Queue  string // optional
}

// baseName strips directories and the extension from a storage key.
func baseName(key string) string {
	name := path.Base(key)
	return strings.TrimSuffix(name, path.Ext(name))
}

// Destination is the output prefix handed to the transcoder. The transcoder
// appends the name modifier and extension to its last element.
func Destination(asset models.MediaAsset, p Profile, bucket string) string {
	dest := "s3://" + bucket + "/"
	if p.OutputPrefix != "" {
		dest += p.OutputPrefix + "/"
	}
	return dest + baseName(asset.Key)
}

// OutputPath is the location the converted file will have once the job
// completes.
func OutputPath(asset models.MediaAsset, p Profile, bucket string) string {
	return Destination(asset, p, bucket) + p.NameModifier + "." + p.Extension
}

// BuildJob assembles a complete CreateJob request for one asset.
func BuildJob(asset models.MediaAsset, inputFormat string, p Profile, t Target) (*mediaconvert.CreateJobInput, error) {
	if asset.Bucket == "" || asset.Key == "" {
		return nil, fmt.Errorf("asset location is incomplete: bucket=%q key=%q", asset.Bucket, asset.Key)
	}
	if t.Role == "" {
		return nil, fmt.Errorf("transcoder role is not configured")
	}
	if t.Bucket == "" {
		return nil, fmt.Errorf("output bucket is not configured")
	}

	input := &mediaconvert.CreateJobInput{
		Role: aws.String(t.Role),
		Settings: &types.JobSettings{
			Inputs: []types.Input{{
				FileInput: aws.String(asset.URI()),
				AudioSelectors: map[string]types.AudioSelector{
					audioSelector: {DefaultSelection: types.AudioDefaultSelectionDefault},
				},
				VideoSelector:  &types.VideoSelector{},
				TimecodeSource: types.InputTimecodeSourceZerobased,
			}},
			OutputGroups: []types.OutputGroup{{
				Name: aws.String(fmt.Sprintf("%s_to_%s_Conversion", inputFormat, p.Container)),
				OutputGroupSettings: &types.OutputGroupSettings{
					Type: types.OutputGroupTypeFileGroupSettings,
					FileGroupSettings: &types.FileGroupSettings{
						Destination: aws.String(Destination(asset, p, t.Bucket)),
						DestinationSettings: &types.DestinationSettings{
							S3Settings: &types.S3DestinationSettings{
								StorageClass: types.S3StorageClassStandard,
							},
						},
					},
				},
				Outputs: []types.Output{buildOutput(p)},
			}},
			TimecodeConfig: &types.TimecodeConfig{Source: types.TimecodeSourceZerobased},
		},
		AccelerationSettings: &types.AccelerationSettings{Mode: types.AccelerationModeDisabled},
		StatusUpdateInterval: types.StatusUpdateIntervalSeconds60,
		Priority:             aws.Int32(0),
		UserMetadata: map[string]string{
			"InputFormat":      inputFormat,
			"OutputFormat":     p.Container,
			"ConversionType":   "Format_Standardization",
			"AnalysisRequired": "true",
			"SourceBucket":     asset.Bucket,
			"SourceKey":        asset.Key,
		},
	}
	if t.Queue != "" {
		input.Queue = aws.String(t.Queue)
	}
	return input, nil
}

func buildOutput(p Profile) types.Output {
	return types.Output{
		NameModifier: aws.String(p.NameModifier),
		Extension:    aws.String(p.Extension),
		VideoDescription: &types.VideoDescription{
			Width:             aws.Int32(p.Width),
			Height:            aws.Int32(p.Height),
			ScalingBehavior:   types.ScalingBehaviorDefault,
			TimecodeInsertion: types.VideoTimecodeInsertionDisabled,
			AntiAlias:         types.AntiAliasEnabled,
			Sharpness:         aws.Int32(50),
			CodecSettings: &types.VideoCodecSettings{
				Codec: types.VideoCodec(p.VideoCodec),
				H264Settings: &types.H264Settings{
					InterlaceMode:                       types.H264InterlaceModeProgressive,
					NumberReferenceFrames:               aws.Int32(p.ReferenceFrames),
					GopSize:                             aws.Float64(p.GopSize),
					GopSizeUnits:                        types.H264GopSizeUnitsFrames,
					GopClosedCadence:                    aws.Int32(1),
					NumberBFramesBetweenReferenceFrames: aws.Int32(p.BFrames),
					Bitrate:                             aws.Int32(p.VideoBitrate),
					RateControlMode:                     types.H264RateControlMode(p.RateControl),
					CodecProfile:                        types.H264CodecProfile(p.CodecProfile),
					CodecLevel:                          types.H264CodecLevelAuto,
					EntropyEncoding:                     types.H264EntropyEncodingCabac,
					FramerateControl:                    types.H264FramerateControlInitializeFromSource,
					ParControl:                          types.H264ParControlInitializeFromSource,
					SceneChangeDetect:                   types.H264SceneChangeDetectEnabled,
					QualityTuningLevel:                  types.H264QualityTuningLevelSinglePass,
					AdaptiveQuantization:                types.H264AdaptiveQuantizationHigh,
				},
			},
		},
		AudioDescriptions: []types.AudioDescription{{
			AudioSourceName:     aws.String(audioSelector),
			AudioTypeControl:    types.AudioTypeControlFollowInput,
			LanguageCodeControl: types.AudioLanguageCodeControlFollowInput,
			CodecSettings: &types.AudioCodecSettings{
				Codec: types.AudioCodec(p.AudioCodec),
				AacSettings: &types.AacSettings{
					Bitrate:         aws.Int32(p.AudioBitrate),
					SampleRate:      aws.Int32(p.SampleRate),
					CodecProfile:    types.AacCodecProfile(p.AudioProfile),
					CodingMode:      codingMode(p.AudioChannels),
					RateControlMode: types.AacRateControlModeCbr,
					Specification:   types.AacSpecificationMpeg4,
					RawFormat:       types.AacRawFormatNone,
				},
			},
		}},
		ContainerSettings: &types.ContainerSettings{
			Container: types.ContainerType(p.Container),
			Mp4Settings: &types.Mp4Settings{
				CslgAtom:      types.Mp4CslgAtomInclude,
				FreeSpaceBox:  types.Mp4FreeSpaceBoxExclude,
				MoovPlacement: types.Mp4MoovPlacementProgressiveDownload,
				Mp4MajorBrand: aws.String(p.MajorBrand),
			},
		},
	}
}

func codingMode(channels string) types.AacCodingMode {
	switch channels {
	case "1.0":
		return types.AacCodingModeCodingMode10
	case "5.1":
		return types.AacCodingModeCodingMode51
	default:
		return types.AacCodingModeCodingMode20
	}
}
