package transcribe

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Summary is the condensed form of a Transcribe transcript file.
type Summary struct {
	FullTranscript string          `json:"full_transcript"`
	Items          []Item          `json:"items"`
	SpeakerLabels  json.RawMessage `json:"speaker_labels,omitempty"`
	JobName        string          `json:"job_name"`
	AccountID      string          `json:"account_id"`
	Status         string          `json:"status"`
}

type Item struct {
	Type         string        `json:"type"`
	StartTime    string        `json:"start_time,omitempty"`
	EndTime      string        `json:"end_time,omitempty"`
	Alternatives []Alternative `json:"alternatives"`
	SpeakerLabel string        `json:"speaker_label,omitempty"`
}

type Alternative struct {
	Confidence string `json:"confidence"`
	Content    string `json:"content"`
}

type TranscriptionResult struct {
	Transcript    *Summary `json:"transcript"`
	SubtitleFiles []string `json:"subtitle_files,omitempty"`
}

type LanguageDuration struct {
	LanguageCode      string  `json:"language_code"`
	DurationInSeconds float32 `json:"duration_in_seconds"`
}

type LanguageResult struct {
	LanguageCode            string             `json:"language_code"`
	IdentifiedLanguageScore float32            `json:"identified_language_score"`
	LanguageCodes           []LanguageDuration `json:"language_codes,omitempty"`
}

type RedactionResult struct {
	RedactedTranscript *Summary `json:"redacted_transcript"`
}

type transcriptFile struct {
	JobName   string `json:"jobName"`
	AccountID string `json:"accountId"`
	Status    string `json:"status"`
	Results   struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
		Items         []Item          `json:"items"`
		SpeakerLabels json.RawMessage `json:"speaker_labels"`
	} `json:"results"`
}

// Summarize decodes a transcript file.
func Summarize(body []byte) (*Summary, error) {
	var tf transcriptFile
	if err := json.Unmarshal(body, &tf); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	s := &Summary{
		Items:         tf.Results.Items,
		SpeakerLabels: tf.Results.SpeakerLabels,
		JobName:       tf.JobName,
		AccountID:     tf.AccountID,
		Status:        tf.Status,
	}
	if len(tf.Results.Transcripts) > 0 {
		s.FullTranscript = tf.Results.Transcripts[0].Transcript
	}
	if s.Items == nil {
		s.Items = []Item{}
	}
	return s, nil
}

// BuildSRT groups pronunciation items into one cue per sentence. Punctuation
// items attach to the preceding word and '.', '?' or '!' close the cue.
// Trailing words without closing punctuation form a final cue.
func BuildSRT(items []Item) string {
	var (
		b       strings.Builder
		words   []string
		start   float64
		end     float64
		index   = 1
		started bool
	)
	flush := func() {
		if len(words) == 0 {
			return
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", index, srtTime(start), srtTime(end), strings.Join(words, " "))
		index++
		words = nil
		started = false
	}

	for _, it := range items {
		if len(it.Alternatives) == 0 {
			continue
		}
		content := it.Alternatives[0].Content
		switch it.Type {
		case "pronunciation":
			st, _ := strconv.ParseFloat(it.StartTime, 64)
			et, _ := strconv.ParseFloat(it.EndTime, 64)
			if !started {
				start, started = st, true
			}
			end = et
			words = append(words, content)
		case "punctuation":
			if len(words) == 0 {
				continue
			}
			words[len(words)-1] += content
			if content == "." || content == "?" || content == "!" {
				flush()
			}
		}
	}
	flush()
	return b.String()
}

func srtTime(seconds float64) string {
	ms := int64(seconds*1000 + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
