package testutil

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/metricsnap/internal/crypto"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
)

// Fixture constants. Iterations are kept low so tests stay fast.
const (
	TestTenant     = "acme"
	TestSecret     = "correct horse battery staple"
	TestIterations = 1000
)

// TestSalt is a fixed 16-byte salt, base64 encoded.
var TestSalt = base64.StdEncoding.EncodeToString([]byte("metricsnap-salt!"))

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// SnapshotBuilder assembles consolidated snapshot documents.
type SnapshotBuilder struct {
	tenantID string
	records  map[string]any
	crema    map[string]any

	encryptFields []string
	encryptCrema  bool
}

// NewSnapshot starts a snapshot for a tenant.
func NewSnapshot(tenantID string) *SnapshotBuilder {
	return &SnapshotBuilder{
		tenantID: tenantID,
		records:  make(map[string]any),
	}
}

// WithPeriod adds a well-formed period record.
func (b *SnapshotBuilder) WithPeriod(period string, metrics map[string]any) *SnapshotBuilder {
	b.records[period] = map[string]any{
		"date_range": map[string]any{"label": period},
		"timestamp":  "2026-03-01T10:00:00Z",
		"metrics":    metrics,
	}
	return b
}

// WithRecord adds a raw period record, for malformed cases.
func (b *SnapshotBuilder) WithRecord(period string, record any) *SnapshotBuilder {
	b.records[period] = record
	return b
}

// WithCrema sets the discovery sub-document.
func (b *SnapshotBuilder) WithCrema(crema map[string]any) *SnapshotBuilder {
	b.crema = crema
	return b
}

// EncryptFields marks metric fields to seal in every period. With no fields
// the whole metrics mapping of each period is sealed.
func (b *SnapshotBuilder) EncryptFields(fields ...string) *SnapshotBuilder {
	b.encryptFields = fields
	if len(fields) == 0 {
		b.encryptFields = []string{}
	}
	return b
}

// EncryptCrema seals the crema entities.
func (b *SnapshotBuilder) EncryptCrema() *SnapshotBuilder {
	b.encryptCrema = true
	return b
}

// Plain returns the unencrypted document.
func (b *SnapshotBuilder) Plain(t testing.TB) []byte {
	t.Helper()
	return mustJSON(t, b.document())
}

// Encrypted returns the document with the selected fields sealed under secret.
func (b *SnapshotBuilder) Encrypted(t testing.TB, secret string) []byte {
	t.Helper()

	key := DeriveTestKey(t, secret)
	doc := b.document()
	doc[models.KeyEncryption] = map[string]any{
		"salt":       TestSalt,
		"iterations": TestIterations,
	}

	records := doc["metrics"].(map[string]any)
	for period, raw := range records {
		record, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		metrics, ok := record["metrics"].(map[string]any)
		if !ok {
			continue
		}

		if b.encryptFields != nil && len(b.encryptFields) == 0 {
			record["metrics"] = seal(t, metrics, key)
			continue
		}
		for _, field := range b.encryptFields {
			if v, ok := metrics[field]; ok {
				metrics[field] = seal(t, v, key)
			}
		}
		records[period] = record
	}

	if b.encryptCrema && b.crema != nil {
		crema := doc["crema"].(map[string]any)
		if entities, ok := crema["entities"]; ok {
			crema["entities"] = seal(t, entities, key)
		}
	}

	return mustJSON(t, doc)
}

// document deep-copies the builder state through JSON.
func (b *SnapshotBuilder) document() map[string]any {
	doc := map[string]any{
		"tenant_id":     b.tenantID,
		"business_type": "nonprofit",
		"cached_at":     "2026-03-01T10:00:00Z",
		"cache_version": 2,
		"metrics":       b.records,
	}
	if b.crema != nil {
		doc["crema"] = b.crema
	}

	data, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Errorf("marshal snapshot: %w", err))
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Errorf("unmarshal snapshot: %w", err))
	}
	return out
}

// DeriveTestKey derives the fixture key for secret.
func DeriveTestKey(t testing.TB, secret string) []byte {
	t.Helper()

	key, err := crypto.NewProvider().DeriveKey(secret, models.EncryptionInfo{
		Salt:       TestSalt,
		Iterations: TestIterations,
	})
	require.NoError(t, err)
	return key
}

// SampleCrema is discovery data with two entity types.
func SampleCrema() map[string]any {
	return map[string]any{
		"sources":          []any{"crm", "ledger"},
		"categories":       []any{map[string]any{"name": "donations"}, map[string]any{"name": "events"}},
		"data_types":       []any{"currency", "count"},
		"collection_stats": map[string]any{"donors": 3, "campaigns": 2},
		"entities": map[string]any{
			"donor": []any{
				map[string]any{"name": "Ada Lovelace", "city": "London", "tier": "gold"},
				map[string]any{"name": "Grace Hopper", "city": "Arlington", "tier": "gold"},
				map[string]any{"name": "Alan Turing", "city": "London", "tier": "silver"},
			},
			"campaign": []any{
				map[string]any{"name": "Spring Gala", "status": "active"},
				map[string]any{"name": "London Marathon", "status": "closed"},
			},
		},
	}
}

func seal(t testing.TB, v any, key []byte) map[string]any {
	t.Helper()
	env, err := crypto.SealValue(v, key)
	require.NoError(t, err)
	return env
}

func mustJSON(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
