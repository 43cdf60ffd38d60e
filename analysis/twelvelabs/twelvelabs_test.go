package twelvelabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"clipflow/models"
	"clipflow/poll"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeServer struct {
	mu          sync.Mutex
	taskPolls   int
	readyAfter  int
	taskStatus  string
	taskURL     string
	searches    []map[string]interface{}
	summaries   []string
	failQueries map[string]bool
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		if r.Body != nil && r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&body)
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/indexes":
			if body["engine_name"] != "marengo2.6" {
				t.Errorf("Expected engine marengo2.6, got %v", body["engine_name"])
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"_id":"index-1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/tasks":
			f.taskURL, _ = body["url"].(string)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"_id":"task-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/tasks/task-1":
			f.taskPolls++
			status := "indexing"
			if f.taskPolls > f.readyAfter {
				status = f.taskStatus
			}
			json.NewEncoder(w).Encode(map[string]string{"_id": "task-1", "status": status, "video_id": "video-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/search":
			f.searches = append(f.searches, body)
			q, _ := body["query"].(string)
			if f.failQueries[q] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"data": []string{q}})
		case r.Method == http.MethodPost && r.URL.Path == "/summarize":
			kind, _ := body["type"].(string)
			f.summaries = append(f.summaries, kind)
			json.NewEncoder(w).Encode(map[string]string{"id": "sum", "type": kind})
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestAnalyzer(t *testing.T, f *fakeServer, opts Options) *Analyzer {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	opts.Policy = poll.Policy{Interval: time.Millisecond, MaxWait: 5 * time.Second}
	return New(NewClient("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client())), opts)
}

func TestResolveWaitsForReadyTask(t *testing.T) {
	f := &fakeServer{readyAfter: 2, taskStatus: "ready"}
	a := newTestAnalyzer(t, f, Options{})

	src, err := a.Resolve(context.Background(), "https://cdn.example.com/clip.mp4")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if src.Attrs["index_id"] != "index-1" || src.Attrs["task_id"] != "task-1" || src.Attrs["video_id"] != "video-1" {
		t.Errorf("Unexpected attrs %v", src.Attrs)
	}
	if f.taskPolls != 3 {
		t.Errorf("Expected 3 task polls, got %d", f.taskPolls)
	}
	if f.taskURL != "https://cdn.example.com/clip.mp4" {
		t.Errorf("Expected artifact passed through, got %s", f.taskURL)
	}
}

func TestResolveFailedTask(t *testing.T) {
	f := &fakeServer{taskStatus: "failed"}
	a := newTestAnalyzer(t, f, Options{})

	if _, err := a.Resolve(context.Background(), "https://cdn.example.com/clip.mp4"); err == nil {
		t.Error("Expected failed task to fail resolution")
	}
}

type fakePresigner struct{ key string }

func (p *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	p.key = *in.Bucket + "/" + *in.Key
	return &v4.PresignedHTTPRequest{URL: "https://signed.example.com/" + p.key}, nil
}

func TestResolvePresignsS3Artifacts(t *testing.T) {
	f := &fakeServer{taskStatus: "ready"}
	p := &fakePresigner{}
	a := newTestAnalyzer(t, f, Options{Presigner: p})

	src, err := a.Resolve(context.Background(), "s3://out/converted/clip_converted.mp4")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.key != "out/converted/clip_converted.mp4" {
		t.Errorf("Expected presigned out/converted/clip_converted.mp4, got %s", p.key)
	}
	if f.taskURL != "https://signed.example.com/out/converted/clip_converted.mp4" {
		t.Errorf("Expected presigned task url, got %s", f.taskURL)
	}
	if src.Bucket != "out" || src.Key != "converted/clip_converted.mp4" {
		t.Errorf("Unexpected source %+v", src)
	}
}

func TestCapabilitiesCompleteAtStart(t *testing.T) {
	f := &fakeServer{taskStatus: "ready"}
	a := newTestAnalyzer(t, f, Options{})
	src, err := a.Resolve(context.Background(), "https://cdn.example.com/clip.mp4")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, capability := range a.Capabilities() {
		job, err := a.Start(context.Background(), src, capability)
		if err != nil {
			t.Fatalf("%s failed: %v", capability, err)
		}
		if job.Status != models.SubJobSucceeded || job.Result == nil {
			t.Errorf("Expected %s to succeed with a result, got %+v", capability, job)
		}
	}

	if len(f.summaries) != 2 || f.summaries[0] != "summary" || f.summaries[1] != "highlight" {
		t.Errorf("Unexpected summarize calls %v", f.summaries)
	}
	if len(f.searches) != 2+len(SearchQueries) {
		t.Errorf("Expected %d searches, got %d", 2+len(SearchQueries), len(f.searches))
	}
	filter, _ := f.searches[0]["filter"].(map[string]interface{})
	if filter["video_id"] != "video-1" {
		t.Errorf("Expected search filtered to video-1, got %v", f.searches[0]["filter"])
	}
}

func TestSearchIndexToleratesFailedQueries(t *testing.T) {
	f := &fakeServer{taskStatus: "ready", failQueries: map[string]bool{"text and signs": true}}
	a := newTestAnalyzer(t, f, Options{})
	src := models.SourceRef{Attrs: map[string]string{"index_id": "index-1", "video_id": "video-1", "task_id": "task-1"}}

	job, err := a.Start(context.Background(), src, CapabilitySearchIndex)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	results := job.Result.(map[string]json.RawMessage)
	if len(results) != len(SearchQueries)-1 {
		t.Errorf("Expected %d query results, got %d", len(SearchQueries)-1, len(results))
	}
	if _, ok := results["text and signs"]; ok {
		t.Error("Expected failed query to be left out")
	}

	for _, q := range SearchQueries {
		f.failQueries[q] = true
	}
	if _, err := a.Start(context.Background(), src, CapabilitySearchIndex); err == nil || !strings.Contains(err.Error(), "all search queries failed") {
		t.Errorf("Expected all-failed error, got %v", err)
	}
}

func TestClientRejectsWrongStatus(t *testing.T) {
	f := &fakeServer{taskStatus: "ready"}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := NewClient("wrong-key", WithBaseURL(srv.URL))
	if _, err := c.CreateIndex(context.Background(), "idx", "marengo2.6", engineOptions); err == nil || !strings.Contains(err.Error(), "http 401") {
		t.Errorf("Expected http 401 error, got %v", err)
	}
	if _, err := NewClient("").Search(context.Background(), "i", "v", "q", nil); err == nil {
		t.Error("Expected missing api key to be rejected")
	}
}
