package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGMSImageSubmitCompletesImmediately(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			http.NotFound(w, r)
			return
		}
		var body gmsImageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Model != "dall-e-3" || body.N != 1 {
			t.Errorf("unexpected request: %+v", body)
		}
		_, _ = w.Write([]byte(`{"data":[{"url":"https://cdn/poster.png"}]}`))
	}))
	defer srv.Close()

	g := NewGMSImage(GMSImageOptions{APIKey: "key", BaseURL: srv.URL})
	h, err := g.Submit(context.Background(), "americano poster", nil, Params{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := g.Poll(context.Background(), h)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != StatusSucceeded || len(res.Output) != 1 || res.Output[0] != "https://cdn/poster.png" {
		t.Fatalf("result = %+v", res)
	}
}

func TestGMSImageVendorRejectionIsTerminalFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy violation"}}`))
	}))
	defer srv.Close()

	g := NewGMSImage(GMSImageOptions{APIKey: "key", BaseURL: srv.URL})
	h, err := g.Submit(context.Background(), "blocked prompt", nil, Params{})
	if err != nil {
		t.Fatalf("Submit returned error, want terminal failure in handle: %v", err)
	}
	res, err := g.Poll(context.Background(), h)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != StatusFailed || res.ErrorDetail == "" {
		t.Fatalf("result = %+v", res)
	}
}
