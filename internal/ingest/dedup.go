package ingest

import (
	"strings"

	"github.com/david/opportunity-importer/internal/models"
)

// Signature is the dedup key of an opportunity: its title, client and
// location, each trimmed and lower-cased, joined with "|".
func Signature(title, client, location string) string {
	parts := [3]string{title, client, location}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts[:], "|")
}

// PreviewSignature keys a normalized preview by the cleaned values that
// BuildTempRecord stores, so it matches StagedSignature of the saved record.
func PreviewSignature(p ImportedOpportunityPreview) string {
	return StagedSignature(stagedKey(p))
}

// StagedSignature keys a record already in the staging queue. The store
// reports NULL columns as empty strings.
func StagedSignature(k models.StagedKey) string {
	return Signature(k.ProjectTitle, k.ClientName, k.Location)
}

// SignatureSet accumulates signatures over one import batch. It is not safe
// for concurrent use; callers must check candidates in arrival order.
type SignatureSet struct {
	seen map[string]struct{}
}

// NewSignatureSet returns an empty set.
func NewSignatureSet() *SignatureSet {
	return &SignatureSet{seen: make(map[string]struct{})}
}

// Seed adds the signatures of existing staged records.
func (s *SignatureSet) Seed(keys []models.StagedKey) {
	for _, k := range keys {
		s.seen[StagedSignature(k)] = struct{}{}
	}
}

func (s *SignatureSet) Has(sig string) bool {
	_, ok := s.seen[sig]
	return ok
}

// CheckAndAdd reports whether sig was already present and records it either
// way, so later copies of a lead are caught even when the first one is never
// stored.
func (s *SignatureSet) CheckAndAdd(sig string) bool {
	_, dup := s.seen[sig]
	s.seen[sig] = struct{}{}
	return dup
}

func (s *SignatureSet) Len() int { return len(s.seen) }

// Clone copies the set so a dry run can mutate it freely.
func (s *SignatureSet) Clone() *SignatureSet {
	c := &SignatureSet{seen: make(map[string]struct{}, len(s.seen))}
	for k := range s.seen {
		c.seen[k] = struct{}{}
	}
	return c
}
