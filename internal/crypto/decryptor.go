package crypto

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/TheMichaelB/metricsnap/internal/models"
)

const reasonInvalidKey = "invalid key or corrupted data"

// Decryptor applies envelope decryption across a whole document and caches
// the derived key for the rest of the session.
type Decryptor struct {
	provider Provider
	workers  int

	mu   sync.Mutex
	keys map[string][]byte
}

// NewDecryptor creates a decryptor. workers bounds concurrent envelope
// decryptions; values below one mean runtime.NumCPU().
func NewDecryptor(provider Provider, workers int) *Decryptor {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Decryptor{
		provider: provider,
		workers:  workers,
		keys:     make(map[string][]byte),
	}
}

// IsEncrypted reports whether the document carries a non-null _encryption
// block.
func IsEncrypted(doc models.Value) bool {
	info, err := models.ReadEncryptionInfo(doc)
	return err == nil && info != nil
}

// DecryptDocument derives (or reuses) the key for the document's metadata and
// walks the document. Documents without _encryption are returned unchanged.
func (d *Decryptor) DecryptDocument(ctx context.Context, doc models.Value, secret string) (models.Value, error) {
	info, err := models.ReadEncryptionInfo(doc)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return doc, nil
	}

	if secret == "" {
		return nil, &models.DecryptionError{Reason: "no secret supplied", Err: models.ErrNoSecret}
	}

	key, err := d.Key(secret, *info)
	if err != nil {
		return nil, &models.DecryptionError{
			Path:   "$." + models.KeyEncryption,
			Reason: "key derivation failed",
			Err:    fmt.Errorf("%w: %w", models.ErrDecryptionFailed, err),
		}
	}

	return d.Walk(ctx, doc, key)
}

// Key returns the cached key for (secret, info), deriving it on first use.
func (d *Decryptor) Key(secret string, info models.EncryptionInfo) ([]byte, error) {
	fp := fingerprint(secret, info)

	d.mu.Lock()
	key, ok := d.keys[fp]
	d.mu.Unlock()
	if ok {
		return key, nil
	}

	key, err := d.provider.DeriveKey(secret, info)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.keys[fp] = key
	d.mu.Unlock()

	return key, nil
}

// ForgetKeys drops every cached key.
func (d *Decryptor) ForgetKeys() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = make(map[string][]byte)
}

type envelopeJob struct {
	path string
	env  models.Envelope
	set  func(models.Value)
}

// Walk returns a copy of v with every envelope replaced by its decrypted
// value and the reserved metadata keys removed from every mapping. Envelopes
// are decrypted concurrently; on the first failure the whole walk fails and
// no partial document is returned.
func (d *Decryptor) Walk(ctx context.Context, v models.Value, key []byte) (models.Value, error) {
	var (
		root models.Value
		jobs []envelopeJob
	)
	rebuild(v, "$", func(out models.Value) { root = out }, &jobs)

	if len(jobs) == 0 {
		return root, nil
	}

	results := make([]models.Value, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			value, err := d.provider.DecryptEnvelope(job.env, key)
			if err != nil {
				return &models.DecryptionError{
					Path:   job.path,
					Reason: reasonInvalidKey,
					Err:    fmt.Errorf("%w: %w", models.ErrDecryptionFailed, err),
				}
			}
			results[i] = value
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Assigned in one goroutine; mappings are not safe for concurrent writes.
	for i, job := range jobs {
		job.set(results[i])
	}

	return root, nil
}

// rebuild copies the tree, queueing envelopes for decryption.
func rebuild(v models.Value, path string, set func(models.Value), jobs *[]envelopeJob) {
	switch n := v.(type) {
	case models.Envelope:
		*jobs = append(*jobs, envelopeJob{path: path, env: n, set: set})

	case models.Sequence:
		seq := make(models.Sequence, len(n))
		set(seq)
		for i, item := range n {
			rebuild(item, path+"["+strconv.Itoa(i)+"]", func(out models.Value) { seq[i] = out }, jobs)
		}

	case models.Mapping:
		m := make(models.Mapping, len(n))
		set(m)
		for _, k := range n.Keys() {
			if isReserved(k) {
				continue
			}
			rebuild(n[k], path+"."+k, func(out models.Value) { m[k] = out }, jobs)
		}

	case models.Scalar:
		set(n)

	default:
		panic(fmt.Sprintf("crypto: unhandled value type %T", v))
	}
}

func isReserved(key string) bool {
	return key == models.KeyEncryption || key == models.KeyEncrypted || key == models.KeyData
}

func fingerprint(secret string, info models.EncryptionInfo) string {
	h := sha256.New()
	for _, part := range []string{secret, info.Salt, strconv.Itoa(info.Iterations), info.Algorithm()} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
