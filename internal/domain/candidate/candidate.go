package candidate

import "time"

// Candidate is a scored content item reference flowing through one
// query's pipeline: produced by the upstream adapters, merged by the
// fusion engine, narrowed by the access filter.
type Candidate struct {
	ItemID    string
	VersionID string
	Hash      string
	Summary   string
	ValidFrom time.Time

	Lexical  float64
	Semantic float64
	Fused    float64
}

// Resolved is a fully version-resolved entry of the final ranked page.
type Resolved struct {
	ItemID     string    `json:"item_id"`
	VersionID  string    `json:"version_id"`
	Hash       string    `json:"hash"`
	Summary    string    `json:"summary,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Score      float64   `json:"score"`
	ValidFrom  time.Time `json:"valid_from"`
}

// RankedResults is the response of one search: ordered, access-filtered
// and version-resolved for the effective as-of time.
type RankedResults struct {
	Results  []Resolved `json:"results"`
	Degraded bool       `json:"degraded"`
	AsOf     time.Time  `json:"as_of"`
}

// ItemIDs returns the distinct item identifiers of the result page, in
// rank order. The cache layer registers them in its invalidation index.
func (r RankedResults) ItemIDs() []string {
	seen := make(map[string]struct{}, len(r.Results))
	ids := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if _, ok := seen[res.ItemID]; ok {
			continue
		}
		seen[res.ItemID] = struct{}{}
		ids = append(ids, res.ItemID)
	}
	return ids
}
