package analyze

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrNoTranscriptText - none of the known transcript shapes yielded usable
// text.
type ErrNoTranscriptText struct {
	tried []string
}

func (e *ErrNoTranscriptText) Error() string {
	return fmt.Sprintf("no transcript text found, tried fields: %s", strings.Join(e.tried, ", "))
}

// extractor pulls text out of one known transcript shape, returning false
// when the shape does not apply or yields nothing.
type extractor struct {
	name string
	fn   func(map[string]json.RawMessage) (string, bool)
}

// extractors is the ordered list of transcript shapes, first success wins.
// Providers disagree on where the text lives, so each known field gets its
// own strategy.
var extractors = []extractor{
	{name: "full_text", fn: stringField("full_text")},
	{name: "text", fn: stringField("text")},
	{name: "words", fn: concatenatedWords},
}

// TranscriptText extracts the text to analyze from a provider transcript
// payload by trying each known shape in order.
func TranscriptText(transcript json.RawMessage) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(transcript, &fields); err != nil {
		return "", fmt.Errorf("transcript payload is not a JSON object: %w", err)
	}

	tried := make([]string, 0, len(extractors))
	for _, ex := range extractors {
		if text, ok := ex.fn(fields); ok {
			return text, nil
		}
		tried = append(tried, ex.name)
	}
	return "", &ErrNoTranscriptText{tried: tried}
}

// stringField extracts a plain top-level string field.
func stringField(name string) func(map[string]json.RawMessage) (string, bool) {
	return func(fields map[string]json.RawMessage) (string, bool) {
		raw, ok := fields[name]
		if !ok {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
}

// concatenatedWords rebuilds the text from a word-level array, skipping
// non-word entries such as tagged audio events.
func concatenatedWords(fields map[string]json.RawMessage) (string, bool) {
	raw, ok := fields["words"]
	if !ok {
		return "", false
	}
	var words []struct {
		Text string `json:"text"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &words); err != nil {
		return "", false
	}

	var b strings.Builder
	for _, w := range words {
		if w.Type != "" && w.Type != "word" && w.Type != "spacing" {
			continue
		}
		b.WriteString(w.Text)
	}
	text := strings.TrimSpace(b.String())
	return text, text != ""
}
