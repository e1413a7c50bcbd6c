package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// KeyPrefix namespaces every Redis key written by knolens.
const KeyPrefix = "knolens:"

// DefaultVectorDim is the embedding dimension used when config leaves it unset.
const DefaultVectorDim = 384

// Scope is the visibility requirement attached to a content item.
// An empty Tenant means the item is visible to any tenant; an empty
// Roles set means any authenticated principal may read it.
type Scope struct {
	Tenant string
	Roles  []string
}

// ContentItem is the stable identity of a piece of knowledge content.
// Items are created and mutated by the ingestion collaborator; the
// retrieval core reads them and reacts to change events.
type ContentItem struct {
	ID         string
	Hash       string // sha256 of the current version's text, dedup key
	OwnerID    string
	CategoryID string
	Tags       []string
	Scope      Scope
}

// ContentVersion is a temporal snapshot of an item's text and vector.
// Validity intervals [ValidFrom, ValidTo) per item are non-overlapping
// and ordered; a nil ValidTo marks the current version. An item with no
// open version is retired.
type ContentVersion struct {
	ItemID    string
	VersionID string
	Text      string
	Summary   string
	Vector    []float32
	Hash      string
	ValidFrom time.Time
	ValidTo   *time.Time
}

// Current reports whether the version is the open (non-superseded) one.
func (v ContentVersion) Current() bool { return v.ValidTo == nil }

// Covers reports whether the validity interval contains ts.
func (v ContentVersion) Covers(ts time.Time) bool {
	if ts.Before(v.ValidFrom) {
		return false
	}
	return v.ValidTo == nil || ts.Before(*v.ValidTo)
}

// ContentHash derives the deduplication key for a text snapshot.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
