package models

import "encoding/json"

// ProfileKind discriminates the two analysis profile shapes.
type ProfileKind int

const (
	// ProfileComprehensive - a single prompt expecting a structured,
	// schema-shaped JSON answer.
	ProfileComprehensive ProfileKind = iota
	// ProfileSeparate - independent named prompts, one provider call each.
	ProfileSeparate
)

// AnalysisProfile is administrator-managed configuration describing which
// prompts and model the analysis stage runs. The pipeline never mutates
// profiles; they are resolved once per invocation and dispatched on Kind.
type AnalysisProfile struct {
	ID          string
	Name        string
	Model       string
	Temperature float64

	Kind ProfileKind

	// Comprehensive variant.
	Prompt         string
	ResponseSchema json.RawMessage

	// Separate variant: analysis kind -> prompt template. The transcript
	// text is appended to each prompt.
	Prompts map[string]string
}

// DefaultProfile returns the built-in profile used when the invocation
// names none: three independent prompts mirroring the product's original
// sentiment/category/summary analyses.
func DefaultProfile(model string) AnalysisProfile {
	return AnalysisProfile{
		ID:          "default",
		Name:        "Default call analysis",
		Model:       model,
		Temperature: 0.3,
		Kind:        ProfileSeparate,
		Prompts: map[string]string{
			"sentiment": "Analyze the sentiment of the following call transcript. " +
				"Classify it as Positive, Negative, or Neutral. Transcript:\n\n",
			"category": "Categorize the main topic of the following call transcript " +
				"(e.g., Sales Inquiry, Support Request, Billing Issue, Other). Transcript:\n\n",
			"summary": "Provide a concise one-sentence summary of the following call transcript:\n\n",
		},
	}
}
