package content

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lumen-kb/knolens/internal/domain"
)

// Hash field names shared between the read model and the FT index.
const (
	fieldContent   = "__content"
	fieldVector    = "__vector"
	fieldSummary   = "summary"
	fieldItemID    = "item_id"
	fieldVersionID = "version_id"
	fieldHash      = "hash"
	fieldOwner     = "owner_id"
	fieldCategory  = "category"
	fieldTags      = "tags"
	fieldTenant    = "tenant"
	fieldRoles     = "roles"
	fieldValidFrom = "valid_from"
	fieldValidTo   = "valid_to"
)

const tagSeparator = ","

// buildItemFields flattens a ContentItem for HSET.
func buildItemFields(item domain.ContentItem) map[string]string {
	return map[string]string{
		fieldItemID:   item.ID,
		fieldHash:     item.Hash,
		fieldOwner:    item.OwnerID,
		fieldCategory: item.CategoryID,
		fieldTags:     strings.Join(item.Tags, tagSeparator),
		fieldTenant:   item.Scope.Tenant,
		fieldRoles:    strings.Join(item.Scope.Roles, tagSeparator),
	}
}

func parseItemFields(m map[string]string) domain.ContentItem {
	return domain.ContentItem{
		ID:         m[fieldItemID],
		Hash:       m[fieldHash],
		OwnerID:    m[fieldOwner],
		CategoryID: m[fieldCategory],
		Tags:       splitTags(m[fieldTags]),
		Scope: domain.Scope{
			Tenant: m[fieldTenant],
			Roles:  splitTags(m[fieldRoles]),
		},
	}
}

// buildVersionFields flattens a ContentVersion for HSET. Timestamps are
// stored as unix milliseconds so the FT index can treat them as NUMERIC.
func buildVersionFields(v domain.ContentVersion) map[string]string {
	m := map[string]string{
		fieldItemID:    v.ItemID,
		fieldVersionID: v.VersionID,
		fieldContent:   v.Text,
		fieldSummary:   v.Summary,
		fieldHash:      v.Hash,
		fieldVector:    vectorToBytes(v.Vector),
		fieldValidFrom: formatTime(v.ValidFrom),
	}
	if v.ValidTo != nil {
		m[fieldValidTo] = formatTime(*v.ValidTo)
	}
	return m
}

func parseVersionFields(m map[string]string) domain.ContentVersion {
	v := domain.ContentVersion{
		ItemID:    m[fieldItemID],
		VersionID: m[fieldVersionID],
		Text:      m[fieldContent],
		Summary:   m[fieldSummary],
		Hash:      m[fieldHash],
		Vector:    bytesToVector(m[fieldVector]),
		ValidFrom: parseTime(m[fieldValidFrom]),
	}
	if raw, ok := m[fieldValidTo]; ok && raw != "" {
		to := parseTime(raw)
		v.ValidTo = &to
	}
	return v
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSeparator)
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	if len(s) == 0 || len(s)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(s)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return vec
}
