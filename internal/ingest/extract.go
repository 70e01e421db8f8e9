// Package ingest consumes storage-change notifications, creates the
// initial call record for each new object, and starts a pipeline instance.
package ingest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"callinsight/internal/observability/logging"
)

// Notification is one delivered message from the notification feed. Body
// carries the storage event (possibly wrapped in a fan-out envelope);
// Attributes carries per-message key-value attributes.
type Notification struct {
	ID         string
	Body       []byte
	Attributes map[string]string
}

// StorageEvent is the canonical unwrapped form of one storage-change
// notification.
type StorageEvent struct {
	Bucket    string
	Key       string
	EventTime string
	Metadata  map[string]string
}

// customAttrPrefix marks message attributes that carry caller-supplied
// parameters for the pipeline.
const customAttrPrefix = "custom_"

// storageNotification is the wire shape of a storage event batch. The same
// shape appears either directly in the message body or nested inside a
// fan-out envelope's Message field.
type storageNotification struct {
	Records []struct {
		EventSource string `json:"eventSource"`
		EventTime   string `json:"eventTime"`
		S3          struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key          string            `json:"key"`
				UserMetadata map[string]string `json:"userMetadata"`
				Headers      map[string]string `json:"headers"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// fanoutEnvelope is the fan-out wrapper some feeds add around the storage
// event.
type fanoutEnvelope struct {
	Message          string                     `json:"Message"`
	AdditionalParams map[string]json.RawMessage `json:"additionalParams"`
}

// Unwrap parses one notification down to its canonical storage event,
// merging caller-supplied parameters from every source it finds. An error
// means the message is malformed or unrelated; callers log and skip it
// rather than treating it as a pipeline failure.
func Unwrap(n Notification, customHeader string) (StorageEvent, error) {
	var envelope fanoutEnvelope
	if err := json.Unmarshal(n.Body, &envelope); err != nil {
		return StorageEvent{}, fmt.Errorf("notification body is not valid JSON: %w", err)
	}

	body := n.Body
	if envelope.Message != "" {
		body = []byte(envelope.Message)
	}

	var event storageNotification
	if err := json.Unmarshal(body, &event); err != nil {
		return StorageEvent{}, fmt.Errorf("storage event is not valid JSON: %w", err)
	}
	if len(event.Records) == 0 {
		return StorageEvent{}, fmt.Errorf("notification carries no storage records")
	}

	rec := event.Records[0]
	if rec.S3.Bucket.Name == "" || rec.S3.Object.Key == "" {
		return StorageEvent{}, fmt.Errorf("storage record missing bucket or key")
	}

	key, err := decodeObjectKey(rec.S3.Object.Key)
	if err != nil {
		return StorageEvent{}, fmt.Errorf("failed to decode object key %q: %w", rec.S3.Object.Key, err)
	}

	sources := []metadataSource{
		{name: "object_metadata", params: rec.S3.Object.UserMetadata},
		{name: "custom_header", params: headerParams(rec.S3.Object.Headers, customHeader)},
		{name: "message_attributes", params: attributeParams(n.Attributes)},
		{name: "inline_params", params: inlineParams(envelope.AdditionalParams)},
	}

	return StorageEvent{
		Bucket:    rec.S3.Bucket.Name,
		Key:       key,
		EventTime: rec.EventTime,
		Metadata:  mergeParams(sources),
	}, nil
}

// decodeObjectKey reverses the URL encoding storage feeds apply to object
// keys, including the form encoding of spaces as '+'.
func decodeObjectKey(key string) (string, error) {
	return url.QueryUnescape(strings.ReplaceAll(key, "+", "%20"))
}

// headerParams parses the custom parameter header, which carries a JSON
// object of caller-supplied values. A header that fails to parse is logged
// and ignored; it must not fail the whole notification.
func headerParams(headers map[string]string, customHeader string) map[string]string {
	raw, ok := headers[customHeader]
	if !ok || raw == "" {
		return nil
	}
	var parsed map[string]string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger := logging.WithComponent("ingest")
		logger.Warn().
			Str("header", customHeader).
			Msg("Failed to parse custom parameter header as JSON")
		return nil
	}
	return parsed
}

// attributeParams picks caller-supplied parameters out of the message
// attributes. Only attributes carrying the custom prefix participate; the
// prefix is stripped from the resulting key.
func attributeParams(attrs map[string]string) map[string]string {
	var out map[string]string
	for key, value := range attrs {
		if !strings.HasPrefix(key, customAttrPrefix) {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[strings.TrimPrefix(key, customAttrPrefix)] = value
	}
	return out
}

// inlineParams flattens the envelope's inline parameter object. String
// values lose their quotes; anything else is kept as its raw JSON text.
func inlineParams(params map[string]json.RawMessage) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for key, raw := range params {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[key] = s
			continue
		}
		out[key] = string(raw)
	}
	return out
}

type metadataSource struct {
	name   string
	params map[string]string
}

// mergeParams unions the parameter sources left to right, first wins. A
// later source redefining an existing key is logged and dropped rather
// than silently overwriting.
func mergeParams(sources []metadataSource) map[string]string {
	logger := logging.WithComponent("ingest")
	merged := make(map[string]string)
	for _, src := range sources {
		keys := make([]string, 0, len(src.params))
		for k := range src.params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if _, exists := merged[key]; exists {
				logger.Warn().
					Str("key", key).
					Str("source", src.name).
					Msg("Dropping conflicting metadata value, earlier source wins")
				continue
			}
			merged[key] = src.params[key]
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// CallID derives the record identifier for one storage event. The id is a
// name-based UUID over the object location and event time, so redelivery
// of the same notification reproduces the same id and the record store's
// conditional create collapses the duplicates.
func CallID(ev StorageEvent) string {
	name := fmt.Sprintf("callinsight://%s/%s@%s", ev.Bucket, ev.Key, ev.EventTime)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
