package query

import "strings"

// Class is the advisory query classification. It steers fusion weight
// selection and nothing else: both retrieval branches always run.
type Class string

const (
	// Factual favors lexical relevance (quoted phrases, short lookups).
	Factual Class = "factual"
	// Conceptual favors vector similarity (free-form, question-like text).
	Conceptual Class = "conceptual"
	// Mixed applies the default weights.
	Mixed Class = "mixed"
)

// conceptualTokens is the token count from which free-form text is
// treated as conceptual.
const conceptualTokens = 12

var questionLeads = []string{
	"what", "why", "how", "when", "where", "who", "which",
	"can", "does", "is", "are", "should",
}

// Classify applies the classification heuristic to raw query text:
// a quoted exact phrase or a short token count marks a factual lookup,
// question-form or long free-form text marks a conceptual one.
func Classify(raw string) Class {
	normalized := Normalize(raw)
	if normalized == "" {
		return Mixed
	}

	if strings.Contains(raw, `"`) && strings.Count(raw, `"`) >= 2 {
		return Factual
	}

	tokens := strings.Fields(normalized)
	if len(tokens) <= 3 {
		return Factual
	}

	if strings.HasSuffix(normalized, "?") {
		return Conceptual
	}
	for _, lead := range questionLeads {
		if tokens[0] == lead {
			return Conceptual
		}
	}
	if len(tokens) >= conceptualTokens {
		return Conceptual
	}

	return Mixed
}
