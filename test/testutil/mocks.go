package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSecrets mocks secret acquisition.
type MockSecrets struct {
	mock.Mock
}

func (m *MockSecrets) Acquire(ctx context.Context) (string, bool, error) {
	args := m.Called(ctx)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSecrets) Forget(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// StaticSecret always returns the same secret and records Forget calls.
type StaticSecret struct {
	Secret  string
	Forgets int
}

func (s *StaticSecret) Acquire(ctx context.Context) (string, bool, error) {
	return s.Secret, s.Secret != "", nil
}

func (s *StaticSecret) Forget(ctx context.Context) error {
	s.Forgets++
	return nil
}

// MockPrompter mocks the interactive prompt.
type MockPrompter struct {
	mock.Mock
}

func (m *MockPrompter) Prompt(ctx context.Context, message string) (string, bool, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Bool(1), args.Error(2)
}
