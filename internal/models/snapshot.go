package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"time"
)

// Key derivation functions accepted in the _encryption block.
const (
	KDFPBKDF2 = "pbkdf2-sha256"
	KDFScrypt = "scrypt"
)

// Metrics is the measurement mapping of one period.
type Metrics map[string]any

// EncryptionInfo is the _encryption metadata block of a snapshot.
type EncryptionInfo struct {
	Salt       string `json:"salt"` // Base64 encoded
	Iterations int    `json:"iterations"`
	KDF        string `json:"kdf,omitempty"`
}

// Algorithm returns the configured KDF, defaulting to PBKDF2.
func (e EncryptionInfo) Algorithm() string {
	if e.KDF == "" {
		return KDFPBKDF2
	}
	return e.KDF
}

// PeriodRecord is the per-period entry under the snapshot's metrics mapping.
type PeriodRecord struct {
	DateRange      any     `json:"date_range,omitempty"`
	Timestamp      any     `json:"timestamp,omitempty"`
	Metrics        Metrics `json:"metrics"`
	SourceTargets  any     `json:"source_targets,omitempty"`
	AllMetricsData any     `json:"all_metrics_data,omitempty"`
}

// CremaData is the optional discovery sub-document.
type CremaData map[string]any

// Clone returns a shallow copy. Nested values are shared.
func (c CremaData) Clone() CremaData {
	return maps.Clone(c)
}

// Sources returns the discovered data sources.
func (c CremaData) Sources() []any {
	return c.list("sources")
}

// Categories returns the discovered categories.
func (c CremaData) Categories() []any {
	return c.list("categories")
}

// DataTypes returns the discovered data types.
func (c CremaData) DataTypes() []any {
	return c.list("data_types")
}

// CollectionStats returns collection statistics.
func (c CremaData) CollectionStats() map[string]any {
	if c == nil {
		return nil
	}
	stats, _ := c["collection_stats"].(map[string]any)
	return stats
}

// Entities returns the entity records of one type.
func (c CremaData) Entities(entityType string) []map[string]any {
	if c == nil {
		return nil
	}
	byType, _ := c["entities"].(map[string]any)
	items, _ := byType[entityType].([]any)

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// EntityTypes lists the entity types present, sorted.
func (c CremaData) EntityTypes() []string {
	if c == nil {
		return nil
	}
	byType, _ := c["entities"].(map[string]any)
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (c CremaData) list(key string) []any {
	if c == nil {
		return nil
	}
	items, _ := c[key].([]any)
	return items
}

// Snapshot is the consolidated cache file.
type Snapshot struct {
	TenantID      any                      `json:"tenant_id"`
	BusinessType  any                      `json:"business_type,omitempty"`
	CachedAt      any                      `json:"cached_at,omitempty"`
	CacheVersion  any                      `json:"cache_version,omitempty"`
	Encryption    *EncryptionInfo          `json:"_encryption,omitempty"`
	Metrics       map[string]*PeriodRecord `json:"metrics"`
	Crema         CremaData                `json:"crema,omitempty"`
	SourceTargets any                      `json:"source_targets,omitempty"`
}

// Periods returns the period identifiers present, sorted.
func (s *Snapshot) Periods() []string {
	periods := make([]string, 0, len(s.Metrics))
	for p := range s.Metrics {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	return periods
}

// Record returns the record for a period and whether the period key is
// present. A present record may still be nil or lack metrics.
func (s *Snapshot) Record(period string) (*PeriodRecord, bool) {
	rec, ok := s.Metrics[period]
	return rec, ok
}

// Clone returns a copy whose metrics mapping can be modified without
// affecting r. Nested values are shared.
func (r *PeriodRecord) Clone() *PeriodRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Metrics = maps.Clone(r.Metrics)
	return &out
}

// Valid reports whether the record carries a metrics mapping.
func (r *PeriodRecord) Valid() bool {
	return r != nil && r.Metrics != nil
}

// CachedTime parses cached_at. The zero time is returned if absent or invalid.
func (s *Snapshot) CachedTime() time.Time {
	raw, ok := s.CachedAt.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ReadEncryptionInfo extracts the _encryption block from a parsed document.
// It returns nil when the document is not encrypted.
func ReadEncryptionInfo(doc Value) (*EncryptionInfo, error) {
	m, ok := doc.(Mapping)
	if !ok {
		return nil, fmt.Errorf("%w: top level is a %s", ErrInvalidSnapshot, doc.Kind())
	}
	node, ok := m[KeyEncryption]
	if !ok {
		return nil, nil
	}
	if scalar, isScalar := node.(Scalar); isScalar && scalar.V == nil {
		return nil, nil
	}

	var info EncryptionInfo
	if err := remarshal(node.Interface(), &info); err != nil {
		return nil, fmt.Errorf("%w: _encryption: %v", ErrInvalidSnapshot, err)
	}
	return &info, nil
}

// DecodeSnapshot converts a decrypted document into a Snapshot.
func DecodeSnapshot(doc Value) (*Snapshot, error) {
	if doc.Kind() != KindMapping {
		return nil, fmt.Errorf("%w: top level is a %s", ErrInvalidSnapshot, doc.Kind())
	}

	var raw snapshotDocument
	if err := remarshal(doc.Interface(), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	snap := raw.Snapshot
	snap.Metrics = make(map[string]*PeriodRecord, len(raw.Metrics))
	for period, data := range raw.Metrics {
		snap.Metrics[period] = decodeRecord(data)
	}
	return &snap, nil
}

// snapshotDocument defers period records so they decode independently.
type snapshotDocument struct {
	Snapshot
	Metrics map[string]json.RawMessage `json:"metrics"`
}

// decodeRecord returns nil for a null or malformed record. The period stays
// listed but is reported as invalid.
func decodeRecord(data json.RawMessage) *PeriodRecord {
	var rec *PeriodRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil
	}
	return rec
}

// remarshal keeps numbers as json.Number in untyped fields.
func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}
