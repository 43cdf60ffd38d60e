package job

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"clipflow/format"
	"clipflow/logger"
	"clipflow/models"
	taskqueue "clipflow/taskQueue"
)

// HandleUpload turns an object-created notification into a transcode job.
// Files with an unsupported extension are acknowledged and skipped.
func (p *Pipeline) HandleUpload(ctx context.Context, body []byte) (models.Outcome, error) {
	_, detail, err := decodeEnvelope("upload", body)
	if err != nil {
		return models.Outcome{}, err
	}
	var n models.UploadNotification
	if err := json.Unmarshal(detail, &n); err != nil {
		return models.Outcome{}, models.Invalid("upload", err, "malformed upload notification")
	}
	if n.Bucket.Name == "" || n.Object.Key == "" {
		return models.Outcome{}, models.Invalid("upload", nil, "upload notification needs bucket and key")
	}
	key, err := url.QueryUnescape(n.Object.Key)
	if err != nil {
		return models.Outcome{}, models.Invalid("upload", err, "object key is not URL-encoded correctly")
	}

	asset := models.MediaAsset{Bucket: n.Bucket.Name, Key: key}
	log := logger.With("source", asset.URI())

	tag, ok := format.Classify(key)
	if !ok {
		log.Infof("Unsupported format %q, skipping", format.Extension(key))
		out := models.OK("", "unsupported file format, skipped")
		out.InputFile = asset.URI()
		return out, nil
	}
	asset.Format = tag

	if p.submitter == nil {
		return models.Outcome{}, notConfigured("upload", "transcoder")
	}
	job, err := p.submitter.Submit(ctx, asset)
	if err != nil {
		log.Errorf("Transcode submission failed: %v", err)
		recordFailure("upload", asset.URI(), err, asset)
		return models.Outcome{}, err
	}

	if err := taskqueue.PutJob(job); err != nil {
		log.Warnf("Failed to record job %s: %v", job.ID, err)
	}
	recordSuccess("upload", job.ID, job, 1)

	output := p.submitter.OutputPath(asset)
	out := models.OK(job.ID, "transcode job submitted")
	out.InputFile = asset.URI()
	out.InputFormat = tag
	out.OutputFormat = strings.ToUpper(strings.TrimPrefix(format.Extension(output), "."))
	out.OutputFiles = []string{output}
	return out, nil
}
