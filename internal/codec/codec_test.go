package codec

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"genworker/internal/domain"
)

func TestParsePayloadField(t *testing.T) {
	t.Parallel()
	fields := map[string]string{
		"payload": `{"jobId":"a-1","kind":"VIDEO_V2","prompt":"cat in space","referenceImages":["https://cdn/ref.png"],"origin":{"storeId":"s-9"}}`,
	}
	req, err := Parse(fields)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if req.ID != "a-1" || req.Kind != domain.KindVideoV2 || req.Prompt != "cat in space" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if !reflect.DeepEqual(req.ReferenceImages, []string{"https://cdn/ref.png"}) {
		t.Fatalf("referenceImages = %v", req.ReferenceImages)
	}
	if req.Origin["storeId"] != "s-9" {
		t.Fatalf("origin = %v", req.Origin)
	}
}

func TestParseFlatFieldsWithEncodedNested(t *testing.T) {
	t.Parallel()
	fields := map[string]string{
		"jobId":           "a-2",
		"kind":            "VIDEO_V1",
		"prompt":          "sunset over the harbor",
		"referenceImages": `["https://cdn/a.png","https://cdn/b.png"]`,
		"origin":          `{"userId":"u-7"}`,
	}
	req, err := Parse(fields)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(req.ReferenceImages) != 2 {
		t.Fatalf("referenceImages = %v", req.ReferenceImages)
	}
	if req.Origin["userId"] != "u-7" {
		t.Fatalf("origin = %v", req.Origin)
	}
}

func TestParseLowercaseKind(t *testing.T) {
	t.Parallel()
	req, err := Parse(map[string]string{"jobId": "a-3", "kind": "image", "prompt": "menu poster"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if req.Kind != domain.KindImage {
		t.Fatalf("kind = %q", req.Kind)
	}
}

func TestParseRoundTripStable(t *testing.T) {
	t.Parallel()
	fields := map[string]string{
		"payload": `{"jobId":"a-4","kind":"IMAGE","prompt":"americano","origin":{"menu":"espresso"}}`,
	}
	first, err := Parse(fields)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	raw, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := Parse(map[string]string{"payload": string(raw)})
	if err != nil {
		t.Fatalf("re-parse returned error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("round trip drifted: %+v vs %+v", first, second)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		fields map[string]string
	}{
		{name: "missing_prompt", fields: map[string]string{"jobId": "x", "kind": "IMAGE"}},
		{name: "blank_prompt", fields: map[string]string{"jobId": "x", "kind": "IMAGE", "prompt": "  "}},
		{name: "missing_job_id", fields: map[string]string{"kind": "IMAGE", "prompt": "p"}},
		{name: "unknown_kind", fields: map[string]string{"jobId": "x", "kind": "SHORTS_GEN_9", "prompt": "p"}},
		{name: "broken_payload_json", fields: map[string]string{"payload": `{"jobId":`}},
		{name: "refs_not_a_list", fields: map[string]string{"jobId": "x", "kind": "IMAGE", "prompt": "p", "referenceImages": "not json"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(tc.fields); !errors.Is(err, domain.ErrMalformedMessage) {
				t.Fatalf("err = %v, want ErrMalformedMessage", err)
			}
		})
	}
}
