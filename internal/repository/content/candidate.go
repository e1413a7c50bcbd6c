package content

import (
	"github.com/lumen-kb/knolens/internal/db"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/query"
)

// Prefilter renders query filters as an FT.SEARCH pre-filter clause.
// Returns "" when no filter is set.
func Prefilter(f query.Filters) string {
	return db.AndClauses(
		db.TagClause(fieldCategory, f.Category),
		db.TagClause(fieldTags, f.Tags...),
	)
}

// CandidateFields lists the document fields the upstream adapters load
// per hit. Content and vector bodies stay in Redis.
func CandidateFields() []string {
	return []string{fieldItemID, fieldVersionID, fieldHash, fieldSummary, fieldValidFrom}
}

// ParseCandidate maps one search hit onto an unscored candidate.
func ParseCandidate(e db.SearchEntry) candidate.Candidate {
	return candidate.Candidate{
		ItemID:    e.Fields[fieldItemID],
		VersionID: e.Fields[fieldVersionID],
		Hash:      e.Fields[fieldHash],
		Summary:   e.Fields[fieldSummary],
		ValidFrom: parseTime(e.Fields[fieldValidFrom]),
	}
}
