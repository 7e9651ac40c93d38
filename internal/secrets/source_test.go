package secrets_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/secrets"
)

func TestEnvSource(t *testing.T) {
	src := secrets.EnvSource{Var: "METRICSNAP_TEST_TOKEN"}
	assert.Equal(t, "env:METRICSNAP_TEST_TOKEN", src.Name())

	_, ok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	t.Setenv("METRICSNAP_TEST_TOKEN", "  ")
	_, ok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	t.Setenv("METRICSNAP_TEST_TOKEN", "tok\n")
	token, ok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()

	missing := secrets.FileSource{Path: filepath.Join(dir, "missing")}
	_, ok, err := missing.Token(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("file-token\n"), 0600))

	token, ok, err := secrets.FileSource{Path: path}.Token(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "file-token", token)

	_, _, err = secrets.FileSource{Path: dir}.Token(context.Background())
	assert.Error(t, err)
}

type mockSecretsManager struct {
	mock.Mock
}

func (m *mockSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(ctx, aws.ToString(params.SecretId))
	out, _ := args.Get(0).(*secretsmanager.GetSecretValueOutput)
	return out, args.Error(1)
}

func TestSecretsManagerSource(t *testing.T) {
	tests := []struct {
		name    string
		payload *string
		want    string
		wantOK  bool
		wantErr bool
	}{
		{name: "bare token", payload: aws.String("plain-token"), want: "plain-token", wantOK: true},
		{name: "single secret", payload: aws.String(`{"secret": "s1"}`), want: "s1", wantOK: true},
		{name: "nested per tenant", payload: aws.String(`{"acme": {"secret": "s2"}, "beta": {"secret": "x"}}`), want: "s2", wantOK: true},
		{name: "flat per tenant", payload: aws.String(`{"acme": "s3"}`), want: "s3", wantOK: true},
		{name: "other tenant only", payload: aws.String(`{"beta": "s4"}`), wantOK: false},
		{name: "binary secret", payload: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockSecretsManager{}
			client.On("GetSecretValue", mock.Anything, "metricsnap/acme").
				Return(&secretsmanager.GetSecretValueOutput{SecretString: tt.payload}, nil)

			src := secrets.NewSecretsManagerSource("metricsnap/acme", "acme", client)
			assert.Equal(t, "secretsmanager:metricsnap/acme", src.Name())

			token, ok, err := src.Token(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, token)
			client.AssertExpectations(t)
		})
	}
}

func TestSecretsManagerSourceError(t *testing.T) {
	client := &mockSecretsManager{}
	client.On("GetSecretValue", mock.Anything, "id").Return(nil, errors.New("access denied"))

	_, ok, err := secrets.NewSecretsManagerSource("id", "acme", client).Token(context.Background())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "access denied")
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tenant.ID = "acme"
	cfg.Secret.Prompt = false
	cfg.Secret.TokenEnv = "METRICSNAP_TEST_ACCESS"
	t.Setenv("METRICSNAP_TEST_ACCESS", "env-token")

	a, err := secrets.New(cfg, events.NewNopLogger())
	require.NoError(t, err)
	defer a.Close()

	secret, origin, ok, err := a.AcquireWithOrigin(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "env-token", secret)
	assert.Equal(t, secrets.OriginToken, origin)
}

func TestTerminalPrompterNonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()

	var out discard
	p := &secrets.TerminalPrompter{In: f, Out: &out}

	secret, ok, err := p.Prompt(context.Background(), "Passphrase: ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, secret)
	assert.Zero(t, out.n)
}

type discard struct{ n int }

func (d *discard) Write(p []byte) (int, error) {
	d.n += len(p)
	return len(p), nil
}
