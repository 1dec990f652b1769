package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock implementation of the blob store for testing.
type MockBlobStore struct {
	mock.Mock
}

// PutObject is the mock implementation of the PutObject method.
func (m *MockBlobStore) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
