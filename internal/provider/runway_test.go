package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"genworker/internal/domain"
)

func TestRunwaySubmitRequiresReferenceImage(t *testing.T) {
	t.Parallel()
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	rw := NewRunway(RunwayOptions{APIKey: "key", BaseURL: srv.URL})
	_, err := rw.Submit(context.Background(), "cat in space", nil, Params{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if called {
		t.Fatal("network call attempted despite missing reference images")
	}
}

func TestRunwayUnavailableWithoutKey(t *testing.T) {
	t.Parallel()
	rw := NewRunway(RunwayOptions{})
	if rw.Available() {
		t.Fatal("Available() = true without api key")
	}
	_, err := rw.Submit(context.Background(), "p", []string{"https://cdn/ref.png"}, Params{})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("Submit err = %v, want ErrProviderUnavailable", err)
	}
	_, err = rw.Poll(context.Background(), Handle{ID: "t1"})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("Poll err = %v, want ErrProviderUnavailable", err)
	}
}

func TestRunwaySubmitAndPoll(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/image_to_video":
			if got := r.Header.Get("X-Runway-Version"); got != runwayAPIVersion {
				t.Errorf("X-Runway-Version = %q", got)
			}
			var body runwayCreateRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode create body: %v", err)
			}
			if body.PromptImage != "https://cdn/ref.png" {
				t.Errorf("promptImage = %q", body.PromptImage)
			}
			if body.Model != "gen4_turbo" || body.Ratio != "720:1280" || body.Duration != 5 {
				t.Errorf("defaults not applied: %+v", body)
			}
			_ = json.NewEncoder(w).Encode(runwayTask{ID: "task-1", Status: "PENDING"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/tasks/task-1":
			_ = json.NewEncoder(w).Encode(runwayTask{ID: "task-1", Status: "SUCCEEDED", Output: []string{"https://cdn/x.mp4"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rw := NewRunway(RunwayOptions{APIKey: "key", BaseURL: srv.URL})
	h, err := rw.Submit(context.Background(), "cat in space", []string{"https://cdn/ref.png"}, Params{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.ID != "task-1" {
		t.Fatalf("handle id = %q", h.ID)
	}
	res, err := rw.Poll(context.Background(), h)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != StatusSucceeded || len(res.Output) != 1 || res.Output[0] != "https://cdn/x.mp4" {
		t.Fatalf("result = %+v", res)
	}
}

func TestMapRunwayStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want Status
	}{
		{"PENDING", StatusQueued},
		{"THROTTLED", StatusQueued},
		{"RUNNING", StatusRunning},
		{"SUCCEEDED", StatusSucceeded},
		{"FAILED", StatusFailed},
		{"CANCELLED", StatusFailed},
		{"SOME_NEW_STATE", StatusRunning},
		{"", StatusRunning},
	}
	for _, tc := range cases {
		if got := mapRunwayStatus(tc.in); got != tc.want {
			t.Errorf("mapRunwayStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
