package secrets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/secrets"
)

type mockPrompter struct {
	mock.Mock
}

func (m *mockPrompter) Prompt(ctx context.Context, message string) (string, bool, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Bool(1), args.Error(2)
}

type mockSource struct {
	mock.Mock
	name string
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Token(ctx context.Context) (string, bool, error) {
	args := m.Called(ctx)
	return args.String(0), args.Bool(1), args.Error(2)
}

func TestAcquireFromStore(t *testing.T) {
	ctx := context.Background()
	store := secrets.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "acme", "retained"))

	src := &mockSource{name: "env"}
	prompter := &mockPrompter{}

	a := secrets.NewAcquirer("acme", store, []secrets.TokenSource{src}, prompter, events.NewNopLogger())

	secret, origin, ok, err := a.AcquireWithOrigin(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "retained", secret)
	assert.Equal(t, secrets.OriginStore, origin)

	src.AssertNotCalled(t, "Token", mock.Anything)
	prompter.AssertNotCalled(t, "Prompt", mock.Anything, mock.Anything)
}

func TestAcquireFromTokenSourceInOrder(t *testing.T) {
	ctx := context.Background()
	store := secrets.NewMemoryStore()

	empty := &mockSource{name: "env"}
	empty.On("Token", mock.Anything).Return("", false, nil).Once()

	failing := &mockSource{name: "secretsmanager"}
	failing.On("Token", mock.Anything).Return("", false, errors.New("unreachable")).Once()

	file := &mockSource{name: "file"}
	file.On("Token", mock.Anything).Return("tok-123", true, nil).Once()

	last := &mockSource{name: "never"}
	prompter := &mockPrompter{}

	a := secrets.NewAcquirer("acme", store, []secrets.TokenSource{empty, failing, file, last}, prompter, events.NewNopLogger())

	secret, origin, ok, err := a.AcquireWithOrigin(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-123", secret)
	assert.Equal(t, secrets.OriginToken, origin)

	empty.AssertExpectations(t)
	failing.AssertExpectations(t)
	file.AssertExpectations(t)
	last.AssertNotCalled(t, "Token", mock.Anything)
	prompter.AssertNotCalled(t, "Prompt", mock.Anything, mock.Anything)

	// Tokens are never retained
	_, retained, err := store.Get(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, retained)
}

func TestAcquireFromPromptRetains(t *testing.T) {
	ctx := context.Background()
	store := secrets.NewMemoryStore()

	prompter := &mockPrompter{}
	prompter.On("Prompt", mock.Anything, secrets.DefaultPromptMessage).Return("typed", true, nil).Once()

	a := secrets.NewAcquirer("acme", store, nil, prompter, events.NewNopLogger())

	secret, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "typed", secret)

	// Second call is served from the store without prompting
	secret, ok, err = a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "typed", secret)

	prompter.AssertExpectations(t)
}

func TestAcquirePromptCancelled(t *testing.T) {
	ctx := context.Background()
	store := secrets.NewMemoryStore()

	prompter := &mockPrompter{}
	prompter.On("Prompt", mock.Anything, mock.Anything).Return("", false, nil)

	a := secrets.NewAcquirer("acme", store, nil, prompter, events.NewNopLogger())

	secret, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, secret)

	_, retained, _ := store.Get(ctx, "acme")
	assert.False(t, retained)
}

func TestAcquirePromptFailure(t *testing.T) {
	prompter := &mockPrompter{}
	prompter.On("Prompt", mock.Anything, mock.Anything).Return("", false, errors.New("tty gone"))

	a := secrets.NewAcquirer("acme", nil, nil, prompter, events.NewNopLogger())

	_, ok, err := a.Acquire(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestAcquireWithoutPrompter(t *testing.T) {
	a := secrets.NewAcquirer("acme", secrets.NewMemoryStore(), nil, nil, events.NewNopLogger())

	_, ok, err := a.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireRetentionNone(t *testing.T) {
	prompter := &mockPrompter{}
	prompter.On("Prompt", mock.Anything, mock.Anything).Return("typed", true, nil).Twice()

	a := secrets.NewAcquirer("acme", secrets.NopStore{}, nil, prompter, events.NewNopLogger())

	for i := 0; i < 2; i++ {
		secret, ok, err := a.Acquire(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "typed", secret)
	}

	prompter.AssertExpectations(t)
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	store := secrets.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "acme", "old"))

	prompter := &mockPrompter{}
	prompter.On("Prompt", mock.Anything, "Passphrase for acme: ").Return("new", true, nil).Once()

	a := secrets.NewAcquirer("acme", store, nil, prompter, events.NewNopLogger())
	a.SetPromptMessage("Passphrase for acme: ")

	require.NoError(t, a.Forget(ctx))

	secret, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", secret)
	prompter.AssertExpectations(t)
}
