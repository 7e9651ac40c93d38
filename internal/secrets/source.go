package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// TokenSource supplies an externally issued access token.
type TokenSource interface {
	Name() string

	// Token returns the token, or ok=false when this source has none.
	Token(ctx context.Context) (string, bool, error)
}

// EnvSource reads the token from an environment variable.
type EnvSource struct {
	Var string
}

func (s EnvSource) Name() string { return "env:" + s.Var }

func (s EnvSource) Token(ctx context.Context) (string, bool, error) {
	v, ok := os.LookupEnv(s.Var)
	v = strings.TrimSpace(v)
	return v, ok && v != "", nil
}

// FileSource reads the token from a file. A missing file is not an error.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Token(ctx context.Context) (string, bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	return token, token != "", nil
}

// SecretsManagerAPI is the subset of the Secrets Manager client in use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerSource reads the token from AWS Secrets Manager. The payload
// is either the bare token, {"secret": "..."}, or a map of tenant ID to token
// in flat or {"<tenant>": {"secret": "..."}} form.
type SecretsManagerSource struct {
	SecretID string
	TenantID string

	once   sync.Once
	client SecretsManagerAPI
	err    error
}

// NewSecretsManagerSource creates a source with an explicit client. A nil
// client is created from the default AWS config on first use.
func NewSecretsManagerSource(secretID, tenantID string, client SecretsManagerAPI) *SecretsManagerSource {
	return &SecretsManagerSource{SecretID: secretID, TenantID: tenantID, client: client}
}

func (s *SecretsManagerSource) Name() string { return "secretsmanager:" + s.SecretID }

func (s *SecretsManagerSource) Token(ctx context.Context) (string, bool, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return "", false, err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &s.SecretID})
	if err != nil {
		return "", false, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return "", false, fmt.Errorf("secret has no string payload")
	}

	token := parsePayload(*out.SecretString, s.TenantID)
	return token, token != "", nil
}

func (s *SecretsManagerSource) getClient(ctx context.Context) (SecretsManagerAPI, error) {
	s.once.Do(func() {
		if s.client != nil {
			return
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			s.err = fmt.Errorf("aws config: %w", err)
			return
		}
		s.client = secretsmanager.NewFromConfig(cfg)
	})
	return s.client, s.err
}

func parsePayload(raw, tenantID string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return raw
	}

	// single secret
	var single struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal([]byte(raw), &single); err == nil && single.Secret != "" {
		return single.Secret
	}
	// nested per tenant
	var nested map[string]struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal([]byte(raw), &nested); err == nil {
		if v, ok := nested[tenantID]; ok && v.Secret != "" {
			return v.Secret
		}
	}
	// flat per tenant
	var flat map[string]string
	if err := json.Unmarshal([]byte(raw), &flat); err == nil {
		return flat[tenantID]
	}
	return ""
}
