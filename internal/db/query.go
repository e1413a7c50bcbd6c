package db

import "strings"

// KNNQuery is the input for vector similarity search.
// Prefilter is an FT.SEARCH pre-filter clause (empty means match all).
type KNNQuery struct {
	IndexName    string
	Prefilter    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search. Query is raw user text;
// the driver escapes special syntax before building the command.
type TextQuery struct {
	IndexName    string
	Prefilter    string
	Query        string
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// TagClause builds an FT.SEARCH tag filter clause, OR-ing the values:
// @field:{a|b}. Returns "" when no values are given.
func TagClause(field string, values ...string) string {
	escaped := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		escaped = append(escaped, EscapeTag(v))
	}
	if len(escaped) == 0 {
		return ""
	}
	return "@" + field + ":{" + strings.Join(escaped, "|") + "}"
}

// AndClauses joins non-empty filter clauses with implicit AND.
func AndClauses(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// EscapeTag escapes characters with special meaning inside a TAG clause.
func EscapeTag(s string) string {
	return tagEscaper.Replace(s)
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	`|`, `\|`,
	`{`, `\{`,
	`}`, `\}`,
	` `, `\ `,
	`-`, `\-`,
	`.`, `\.`,
	`:`, `\:`,
)
