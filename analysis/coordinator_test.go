package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipflow/models"
	"clipflow/poll"
)

const (
	behaveOK         = "ok"
	behaveSync       = "sync"
	behaveStartFail  = "start-fail"
	behaveCheckFail  = "check-fail"
	behaveNeverDone  = "never"
	behaveBlockOnCtx = "block"
)

type fakeAnalyzer struct {
	kind        models.AnalyzerKind
	caps        []string
	behave      func(artifact, capability string) string
	unresolved  map[string]bool
	checkCalled chan struct{}

	mu          sync.Mutex
	released    []string
	releaseErrs []error
	inflight    int32
	maxInflight int32
}

func (f *fakeAnalyzer) Kind() models.AnalyzerKind { return f.kind }
func (f *fakeAnalyzer) Capabilities() []string    { return f.caps }

func (f *fakeAnalyzer) Resolve(ctx context.Context, artifact string) (models.SourceRef, error) {
	if f.unresolved[artifact] {
		return models.SourceRef{}, fmt.Errorf("cannot resolve %s", artifact)
	}
	return models.SourceRef{Artifact: artifact}, nil
}

func (f *fakeAnalyzer) Start(ctx context.Context, src models.SourceRef, capability string) (models.AnalysisSubJob, error) {
	switch f.behave(src.Artifact, capability) {
	case behaveStartFail:
		return models.AnalysisSubJob{}, errors.New("quota exceeded")
	case behaveSync:
		return models.AnalysisSubJob{Status: models.SubJobSucceeded, Result: "sync:" + capability}, nil
	}
	return models.AnalysisSubJob{ExternalID: src.Artifact + "#" + capability, Status: models.SubJobRunning}, nil
}

func (f *fakeAnalyzer) Check(ctx context.Context, job models.AnalysisSubJob) (bool, interface{}, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInflight)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxInflight, max, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	switch f.behave(job.Artifact, job.Capability) {
	case behaveCheckFail:
		return false, nil, errors.New("job FAILED")
	case behaveNeverDone:
		return false, nil, nil
	case behaveBlockOnCtx:
		if f.checkCalled != nil {
			select {
			case f.checkCalled <- struct{}{}:
			default:
			}
		}
		<-ctx.Done()
		return false, nil, ctx.Err()
	}
	return true, map[string]string{"capability": job.Capability, "artifact": job.Artifact}, nil
}

func (f *fakeAnalyzer) Release(ctx context.Context, job models.AnalysisSubJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, job.ExternalID)
	f.releaseErrs = append(f.releaseErrs, ctx.Err())
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	persisted []models.AggregatedResult
	sidecars  []models.Sidecar
	err       error
}

func (s *fakeStore) Persist(ctx context.Context, r models.AggregatedResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.persisted = append(s.persisted, r)
	return fmt.Sprintf("analysis/%s/%s_%s_results.json", r.AnalysisType, r.MediaConvertJobID, r.Timestamp), nil
}

func (s *fakeStore) PersistSidecars(ctx context.Context, kind models.AnalyzerKind, jobID string, sc []models.Sidecar) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sidecars = append(s.sidecars, sc...)
	return len(sc)
}

func fastOptions(workers int) Options {
	return Options{Policy: poll.Policy{Interval: time.Millisecond, MaxWait: 200 * time.Millisecond}, Workers: workers}
}

func event(files ...string) models.FanoutEvent {
	return models.FanoutEvent{
		MediaConvertJobID: "job-1",
		ConvertedFiles:    files,
		AnalysisBucket:    "analysis",
		AnalysisTypes:     []string{"rekognition", "twelvelabs", "transcribe"},
	}
}

func TestOnlyOnePairSucceeds(t *testing.T) {
	files := []string{"s3://out/a.mp4", "s3://out/b.mp4", "s3://out/c.mp4"}
	fa := &fakeAnalyzer{
		kind: models.KindRekognition,
		caps: []string{"labels", "faces", "text"},
		behave: func(artifact, capability string) string {
			if artifact == "s3://out/b.mp4" && capability == "faces" {
				return behaveOK
			}
			switch capability {
			case "labels":
				return behaveStartFail
			case "faces":
				return behaveCheckFail
			}
			return behaveNeverDone
		},
	}
	store := &fakeStore{}
	opts := fastOptions(4)
	opts.Policy.MaxWait = 30 * time.Millisecond
	c := NewCoordinator(fa, store, nil, opts)

	out, err := c.Run(context.Background(), event(files...))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.StatusCode != http.StatusOK || out.AnalyzedFilesCount != 1 {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if len(store.persisted) != 1 {
		t.Fatalf("Expected one persisted result, got %d", len(store.persisted))
	}
	res := store.persisted[0]
	if len(res.Results) != 1 {
		t.Fatalf("Expected one file result, got %d", len(res.Results))
	}
	fr := res.Results[0]
	if fr.FilePath != "s3://out/b.mp4" || len(fr.AnalysisResult) != 1 {
		t.Errorf("Unexpected file result %+v", fr)
	}
	if _, ok := fr.AnalysisResult["faces"]; !ok {
		t.Errorf("Expected faces result, got %v", fr.AnalysisResult)
	}
	if res.AnalysisType != models.KindRekognition || res.MediaConvertJobID != "job-1" {
		t.Errorf("Unexpected record header %+v", res)
	}
}

func TestAllFailWritesNothing(t *testing.T) {
	fa := &fakeAnalyzer{
		kind: models.KindTranscribe,
		caps: []string{"transcription", "language_identification"},
		behave: func(artifact, capability string) string {
			if capability == "transcription" {
				return behaveStartFail
			}
			return behaveCheckFail
		},
	}
	store := &fakeStore{}
	c := NewCoordinator(fa, store, nil, fastOptions(2))

	out, err := c.Run(context.Background(), event("s3://out/a.mp4", "s3://out/b.mp4"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", out.StatusCode)
	}
	if out.Message != "no transcribe results" {
		t.Errorf("Unexpected message %q", out.Message)
	}
	if len(store.persisted) != 0 {
		t.Errorf("Expected nothing persisted, got %d", len(store.persisted))
	}
}

func TestResultsFollowInputOrder(t *testing.T) {
	files := []string{"s3://out/3.mp4", "s3://out/1.mp4", "s3://out/skip.mp4", "s3://out/2.mp4"}
	fa := &fakeAnalyzer{
		kind:       models.KindTwelveLabs,
		caps:       []string{"video_summary", "highlights"},
		behave:     func(string, string) string { return behaveSync },
		unresolved: map[string]bool{"s3://out/skip.mp4": true},
	}
	store := &fakeStore{}
	c := NewCoordinator(fa, store, nil, fastOptions(3))

	if _, err := c.Run(context.Background(), event(files...)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := []string{}
	for _, fr := range store.persisted[0].Results {
		got = append(got, fr.FilePath)
		if len(fr.AnalysisResult) != 2 {
			t.Errorf("Expected both capabilities for %s, got %v", fr.FilePath, fr.AnalysisResult)
		}
	}
	want := []string{"s3://out/3.mp4", "s3://out/1.mp4", "s3://out/2.mp4"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestTimeoutIsPartialAndReleased(t *testing.T) {
	fa := &fakeAnalyzer{
		kind: models.KindTranscribe,
		caps: []string{"transcription", "content_redaction"},
		behave: func(artifact, capability string) string {
			if capability == "content_redaction" {
				return behaveNeverDone
			}
			return behaveOK
		},
	}
	store := &fakeStore{}
	opts := fastOptions(2)
	opts.Policy.MaxWait = 20 * time.Millisecond
	c := NewCoordinator(fa, store, nil, opts)

	out, err := c.Run(context.Background(), event("s3://out/a.mp4"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.AnalyzedFilesCount != 1 {
		t.Errorf("Expected one analyzed file, got %d", out.AnalyzedFilesCount)
	}
	results := store.persisted[0].Results[0].AnalysisResult
	if _, ok := results["content_redaction"]; ok {
		t.Error("Expected timed out capability to be absent")
	}
	if _, ok := results["transcription"]; !ok {
		t.Error("Expected transcription to be present")
	}
	sort.Strings(fa.released)
	if len(fa.released) != 2 {
		t.Errorf("Expected both external jobs released, got %v", fa.released)
	}
}

func TestCancellationWritesNothing(t *testing.T) {
	fa := &fakeAnalyzer{
		kind:        models.KindRekognition,
		caps:        []string{"labels", "faces"},
		behave:      func(string, string) string { return behaveBlockOnCtx },
		checkCalled: make(chan struct{}, 1),
	}
	store := &fakeStore{}
	opts := fastOptions(2)
	opts.Policy.MaxWait = 0
	c := NewCoordinator(fa, store, nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-fa.checkCalled
		cancel()
	}()
	_, err := c.Run(ctx, event("s3://out/a.mp4"))
	if err == nil {
		t.Fatal("Expected error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
	if len(store.persisted) != 0 {
		t.Errorf("Expected nothing persisted, got %d", len(store.persisted))
	}
	if len(fa.released) != 2 {
		t.Fatalf("Expected both jobs released, got %v", fa.released)
	}
	for _, e := range fa.releaseErrs {
		if e != nil {
			t.Errorf("Expected release to run on a live context, got %v", e)
		}
	}
}

func TestTrackerCancelStopsInvocation(t *testing.T) {
	fa := &fakeAnalyzer{
		kind:        models.KindTwelveLabs,
		caps:        []string{"video_indexing"},
		behave:      func(string, string) string { return behaveBlockOnCtx },
		checkCalled: make(chan struct{}, 1),
	}
	store := &fakeStore{}
	tracker := NewTracker()
	c := NewCoordinator(fa, store, tracker, fastOptions(1))

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), event("s3://out/a.mp4"))
		done <- err
	}()
	<-fa.checkCalled

	dup, err := c.Run(context.Background(), event("s3://out/a.mp4"))
	if err != nil || dup.StatusCode != http.StatusOK || dup.Message != "twelvelabs analysis already running" {
		t.Errorf("Expected duplicate to be a no-op, got %+v %v", dup, err)
	}

	if err := tracker.Cancel(models.KindTwelveLabs, "job-1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected cancelled run to return an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if state, _ := tracker.State(models.KindTwelveLabs, "job-1"); state != InvocationCancelled {
		t.Errorf("Expected cancelled state, got %s", state)
	}
	if err := tracker.Cancel(models.KindTwelveLabs, "job-1"); err == nil {
		t.Error("Expected second cancel to fail")
	}
	if len(store.persisted) != 0 {
		t.Error("Expected nothing persisted")
	}
}

func TestWorkerPoolBound(t *testing.T) {
	files := make([]string, 6)
	for i := range files {
		files[i] = fmt.Sprintf("s3://out/%d.mp4", i)
	}
	fa := &fakeAnalyzer{
		kind:   models.KindRekognition,
		caps:   []string{"labels", "faces", "text", "moderation"},
		behave: func(string, string) string { return behaveOK },
	}
	store := &fakeStore{}
	c := NewCoordinator(fa, store, nil, fastOptions(3))
	if _, err := c.Run(context.Background(), event(files...)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if max := atomic.LoadInt32(&fa.maxInflight); max > 3 {
		t.Errorf("Expected at most 3 concurrent checks, got %d", max)
	}
	if got := len(store.persisted[0].Results); got != 6 {
		t.Errorf("Expected 6 file results, got %d", got)
	}
}

func TestSkipsWhenKindNotRequested(t *testing.T) {
	fa := &fakeAnalyzer{kind: models.KindTwelveLabs, caps: []string{"x"}, behave: func(string, string) string { return behaveOK }}
	store := &fakeStore{}
	c := NewCoordinator(fa, store, nil, fastOptions(1))
	ev := event("s3://out/a.mp4")
	ev.AnalysisTypes = []string{"rekognition"}

	out, err := c.Run(context.Background(), ev)
	if err != nil || out.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 skip, got %+v %v", out, err)
	}
	if len(store.persisted) != 0 {
		t.Error("Expected nothing persisted")
	}

	out, _ = c.Run(context.Background(), event())
	if out.Message != "no files to analyze" {
		t.Errorf("Unexpected message %q", out.Message)
	}
}

func TestPersistFailureIsFatal(t *testing.T) {
	fa := &fakeAnalyzer{kind: models.KindRekognition, caps: []string{"labels"}, behave: func(string, string) string { return behaveOK }}
	store := &fakeStore{err: errors.New("access denied")}
	c := NewCoordinator(fa, store, nil, fastOptions(1))

	_, err := c.Run(context.Background(), event("s3://out/a.mp4"))
	if models.StatusFor(err) != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d (%v)", models.StatusFor(err), err)
	}
	if state, _ := c.Tracker().State(models.KindRekognition, "job-1"); state != InvocationFailed {
		t.Errorf("Expected failed state, got %s", state)
	}
}

type sidecarAnalyzer struct{ *fakeAnalyzer }

func (s sidecarAnalyzer) Sidecars(ctx context.Context, job models.AnalysisSubJob) []models.Sidecar {
	return []models.Sidecar{{Name: job.Capability + ".vtt", Body: []byte("WEBVTT")}}
}

func TestSidecarsStoredAfterResult(t *testing.T) {
	fa := &fakeAnalyzer{kind: models.KindTranscribe, caps: []string{"transcription"}, behave: func(string, string) string { return behaveOK }}
	store := &fakeStore{}
	c := NewCoordinator(sidecarAnalyzer{fa}, store, nil, fastOptions(1))

	if _, err := c.Run(context.Background(), event("s3://out/a.mp4")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(store.sidecars) != 1 || store.sidecars[0].Name != "transcription.vtt" {
		t.Errorf("Unexpected sidecars %+v", store.sidecars)
	}
}

// releaseSensitiveAnalyzer only yields sidecars while the external job has
// not been released yet.
type releaseSensitiveAnalyzer struct{ *fakeAnalyzer }

func (s releaseSensitiveAnalyzer) Sidecars(ctx context.Context, job models.AnalysisSubJob) []models.Sidecar {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.released {
		if id == job.ExternalID {
			return nil
		}
	}
	return []models.Sidecar{{Name: job.Capability + ".srt", Body: []byte("1")}}
}

func TestSidecarsCollectedBeforeRelease(t *testing.T) {
	fa := &fakeAnalyzer{kind: models.KindTranscribe, caps: []string{"transcription", "redaction"}, behave: func(string, string) string { return behaveOK }}
	store := &fakeStore{}
	c := NewCoordinator(releaseSensitiveAnalyzer{fa}, store, nil, fastOptions(2))

	if _, err := c.Run(context.Background(), event("s3://out/a.mp4")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(store.sidecars) != 2 {
		t.Errorf("Expected 2 sidecars, got %d", len(store.sidecars))
	}
	if len(fa.released) != 2 {
		t.Errorf("Expected 2 released jobs, got %d", len(fa.released))
	}
}
