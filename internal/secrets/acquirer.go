package secrets

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
)

// DefaultPromptMessage is shown by the interactive step.
const DefaultPromptMessage = "Snapshot passphrase: "

// Origin records where a secret came from.
type Origin string

const (
	OriginNone   Origin = ""
	OriginStore  Origin = "store"
	OriginToken  Origin = "token"
	OriginPrompt Origin = "prompt"
)

// Acquirer obtains the decryption secret: retained secret first, then token
// sources in order, then the prompt. Only prompted secrets are retained.
type Acquirer struct {
	tenantID string
	store    Store
	sources  []TokenSource
	prompter Prompter
	message  string
	logger   *events.Logger
}

// NewAcquirer creates an acquirer. prompter may be nil.
func NewAcquirer(tenantID string, store Store, sources []TokenSource, prompter Prompter, logger *events.Logger) *Acquirer {
	if store == nil {
		store = NopStore{}
	}
	return &Acquirer{
		tenantID: tenantID,
		store:    store,
		sources:  sources,
		prompter: prompter,
		message:  DefaultPromptMessage,
		logger:   logger.WithField("component", "secrets"),
	}
}

// New builds an acquirer from configuration.
func New(cfg *config.Config, logger *events.Logger) (*Acquirer, error) {
	store, err := NewStore(&cfg.Secret, logger)
	if err != nil {
		return nil, fmt.Errorf("create secret store: %w", err)
	}

	var sources []TokenSource
	if cfg.Secret.TokenEnv != "" {
		sources = append(sources, EnvSource{Var: cfg.Secret.TokenEnv})
	}
	if cfg.Secret.TokenFile != "" {
		sources = append(sources, FileSource{Path: cfg.Secret.TokenFile})
	}
	if cfg.Secret.SecretsManagerID != "" {
		sources = append(sources, NewSecretsManagerSource(cfg.Secret.SecretsManagerID, cfg.Tenant.ID, nil))
	}

	var prompter Prompter
	if cfg.Secret.Prompt {
		prompter = NewTerminalPrompter()
	}

	return NewAcquirer(cfg.Tenant.ID, store, sources, prompter, logger), nil
}

// SetPromptMessage overrides the prompt text.
func (a *Acquirer) SetPromptMessage(message string) {
	a.message = message
}

// Acquire returns the secret, or ok=false when none is available. An error
// is returned only for store failures; a failing token source is logged and
// skipped.
func (a *Acquirer) Acquire(ctx context.Context) (string, bool, error) {
	secret, _, ok, err := a.AcquireWithOrigin(ctx)
	return secret, ok, err
}

// AcquireWithOrigin is Acquire that also reports which step supplied the
// secret.
func (a *Acquirer) AcquireWithOrigin(ctx context.Context) (string, Origin, bool, error) {
	logger := a.logger.WithField("tenant_id", a.tenantID)

	secret, ok, err := a.store.Get(ctx, a.tenantID)
	if err != nil {
		return "", OriginNone, false, fmt.Errorf("read retained secret: %w", err)
	}
	if ok {
		logger.Debug("Using retained secret")
		return secret, OriginStore, true, nil
	}

	for _, src := range a.sources {
		token, ok, err := src.Token(ctx)
		if err != nil {
			logger.WithError(err).WithField("source", src.Name()).Warn("Token source failed")
			continue
		}
		if ok {
			logger.WithField("source", src.Name()).Debug("Using access token")
			return token, OriginToken, true, nil
		}
	}

	if a.prompter == nil {
		return "", OriginNone, false, nil
	}

	secret, ok, err = a.prompter.Prompt(ctx, a.message)
	if err != nil {
		return "", OriginNone, false, fmt.Errorf("prompt for secret: %w", err)
	}
	if !ok {
		logger.Info("Secret entry cancelled")
		return "", OriginNone, false, nil
	}

	if err := a.store.Put(ctx, a.tenantID, secret); err != nil {
		logger.WithError(err).Warn("Failed to retain secret")
	}

	return secret, OriginPrompt, true, nil
}

// Forget drops the retained secret.
func (a *Acquirer) Forget(ctx context.Context) error {
	return a.store.Delete(ctx, a.tenantID)
}

// Close releases the store.
func (a *Acquirer) Close() error {
	return a.store.Close()
}
