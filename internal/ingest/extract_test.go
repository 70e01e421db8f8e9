package ingest

import (
	"encoding/json"
	"fmt"
	"testing"
)

const customHeader = "x-amz-meta-additional-params"

func storageEventJSON(bucket, key string, extra string) string {
	if extra != "" {
		extra = "," + extra
	}
	return fmt.Sprintf(`{
		"Records": [{
			"eventSource": "storage",
			"eventTime": "2026-03-14T09:30:00Z",
			"s3": {
				"bucket": {"name": %q},
				"object": {"key": %q%s}
			}
		}]
	}`, bucket, key, extra)
}

func TestUnwrap_DirectEvent(t *testing.T) {
	n := Notification{
		ID:   "msg-1",
		Body: []byte(storageEventJSON("calls", "calls/1.aac", "")),
	}

	ev, err := Unwrap(n, customHeader)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if ev.Bucket != "calls" || ev.Key != "calls/1.aac" {
		t.Errorf("unexpected location: %s/%s", ev.Bucket, ev.Key)
	}
	if ev.EventTime != "2026-03-14T09:30:00Z" {
		t.Errorf("unexpected event time: %s", ev.EventTime)
	}
}

func TestUnwrap_FanoutEnvelope(t *testing.T) {
	inner := storageEventJSON("calls", "calls/2.aac", "")
	body, err := json.Marshal(map[string]string{"Message": inner})
	if err != nil {
		t.Fatal(err)
	}

	ev, err := Unwrap(Notification{ID: "msg-2", Body: body}, customHeader)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if ev.Bucket != "calls" || ev.Key != "calls/2.aac" {
		t.Errorf("unexpected location: %s/%s", ev.Bucket, ev.Key)
	}
}

func TestUnwrap_DecodesObjectKey(t *testing.T) {
	tests := []struct {
		encoded string
		want    string
	}{
		{"calls/morning+call.aac", "calls/morning call.aac"},
		{"calls/caf%C3%A9.aac", "calls/café.aac"},
		{"calls/a%2Bb.aac", "calls/a+b.aac"},
		{"calls/plain.aac", "calls/plain.aac"},
	}

	for _, tt := range tests {
		t.Run(tt.encoded, func(t *testing.T) {
			n := Notification{Body: []byte(storageEventJSON("calls", tt.encoded, ""))}
			ev, err := Unwrap(n, customHeader)
			if err != nil {
				t.Fatalf("unwrap failed: %v", err)
			}
			if ev.Key != tt.want {
				t.Errorf("key = %q, want %q", ev.Key, tt.want)
			}
		})
	}
}

func TestUnwrap_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"no records", `{"Records": []}`},
		{"unrelated json", `{"hello": "world"}`},
		{"missing bucket", storageEventJSON("", "calls/1.aac", "")},
		{"missing key", storageEventJSON("calls", "", "")},
		{"envelope with bad inner", `{"Message": "not json"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unwrap(Notification{Body: []byte(tt.body)}, customHeader); err == nil {
				t.Error("expected unwrap to fail")
			}
		})
	}
}

func TestUnwrap_MergesMetadataFirstWins(t *testing.T) {
	extra := fmt.Sprintf(`"userMetadata": {"team": "support", "region": "apac"},
		"headers": {%q: "{\"team\": \"sales\", \"channel\": \"phone\"}"}`, customHeader)
	inner := storageEventJSON("calls", "calls/3.aac", extra)
	body, err := json.Marshal(map[string]any{
		"Message":          inner,
		"additionalParams": map[string]any{"channel": "web", "priority": 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	n := Notification{
		Body: body,
		Attributes: map[string]string{
			"custom_agent": "a-77",
			"custom_team":  "billing",
			"trace_id":     "ignored",
		},
	}

	ev, err := Unwrap(n, customHeader)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}

	want := map[string]string{
		"team":     "support", // object metadata wins over header and attributes
		"region":   "apac",
		"channel":  "phone", // header wins over inline params
		"agent":    "a-77",  // custom_ prefix stripped
		"priority": "3",     // non-string inline value kept as raw JSON
	}
	if len(ev.Metadata) != len(want) {
		t.Fatalf("metadata = %v, want %v", ev.Metadata, want)
	}
	for k, v := range want {
		if ev.Metadata[k] != v {
			t.Errorf("metadata[%s] = %q, want %q", k, ev.Metadata[k], v)
		}
	}
}

func TestUnwrap_UnparsableHeaderIgnored(t *testing.T) {
	extra := fmt.Sprintf(`"userMetadata": {"team": "support"}, "headers": {%q: "not json"}`, customHeader)
	n := Notification{Body: []byte(storageEventJSON("calls", "calls/4.aac", extra))}

	ev, err := Unwrap(n, customHeader)
	if err != nil {
		t.Fatalf("bad custom header must not fail the notification: %v", err)
	}
	if ev.Metadata["team"] != "support" {
		t.Errorf("expected object metadata preserved, got %v", ev.Metadata)
	}
}

func TestCallID_DeterministicPerObjectAndTime(t *testing.T) {
	ev := StorageEvent{Bucket: "calls", Key: "calls/1.aac", EventTime: "2026-03-14T09:30:00Z"}

	a, b := CallID(ev), CallID(ev)
	if a != b {
		t.Errorf("redelivered event must map to the same id: %s vs %s", a, b)
	}

	other := ev
	other.Key = "calls/2.aac"
	if CallID(other) == a {
		t.Error("different objects must map to different ids")
	}

	later := ev
	later.EventTime = "2026-03-14T10:00:00Z"
	if CallID(later) == a {
		t.Error("re-upload at a later event time must map to a new id")
	}
}
