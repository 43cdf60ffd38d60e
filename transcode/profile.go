package transcode

import (
	"fmt"
	"strings"
)

// Variant selects between the two naming variants of the one target profile.
type Variant string

const (
	VariantStandardize Variant = "standardize"
	VariantSD          Variant = "sd"
)

// Profile is the fixed target every supported input is normalized to. It is
// built once at startup and shared by every request.
type Profile struct {
	Name string

	Width  int32
	Height int32

	VideoCodec      string
	RateControl     string
	VideoBitrate    int32
	GopSize         float64
	CodecProfile    string
	ReferenceFrames int32
	BFrames         int32

	AudioCodec    string
	AudioProfile  string
	AudioBitrate  int32
	SampleRate    int32
	AudioChannels string

	Container    string
	MajorBrand   string
	Extension    string
	NameModifier string
	OutputPrefix string
}

// NewProfile returns the canonical profile for a variant. Only the name
// modifier differs between variants.
func NewProfile(variant Variant, outputPrefix string) (Profile, error) {
	p := Profile{
		Name:            string(variant),
		Width:           720,
		Height:          480,
		VideoCodec:      "H_264",
		RateControl:     "CBR",
		VideoBitrate:    2_000_000,
		GopSize:         90,
		CodecProfile:    "MAIN",
		ReferenceFrames: 3,
		BFrames:         2,
		AudioCodec:      "AAC",
		AudioProfile:    "LC",
		AudioBitrate:    128_000,
		SampleRate:      48_000,
		AudioChannels:   "2.0",
		Container:       "MP4",
		MajorBrand:      "isom",
		Extension:       "mp4",
		OutputPrefix:    strings.Trim(outputPrefix, "/"),
	}
	switch variant {
	case VariantStandardize:
		p.NameModifier = "_converted"
	case VariantSD:
		p.NameModifier = "_SD"
	default:
		return Profile{}, fmt.Errorf("unknown profile variant: %s", variant)
	}
	return p, nil
}

// String is used in logs and job metadata.
func (p Profile) String() string {
	return fmt.Sprintf("%s %dx%d %s %s %dbps / %s %dbps -> %s",
		p.Name, p.Width, p.Height, p.VideoCodec, p.RateControl, p.VideoBitrate,
		p.AudioCodec, p.AudioBitrate, p.Container)
}
