package mocks

import (
	"context"

	"docview/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) ListAll(ctx context.Context, class model.Class) ([]model.DocumentRecord, error) {
	args := m.Called(ctx, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DocumentRecord), args.Error(1)
}

func (m *MockDocumentRepository) AddBatch(ctx context.Context, class model.Class, records []model.DocumentRecord) error {
	args := m.Called(ctx, class, records)
	return args.Error(0)
}

func (m *MockDocumentRepository) DeleteBatch(ctx context.Context, class model.Class, filenames []string) error {
	args := m.Called(ctx, class, filenames)
	return args.Error(0)
}

func (m *MockDocumentRepository) Apply(ctx context.Context, class model.Class, add []model.DocumentRecord, del []string) error {
	args := m.Called(ctx, class, add, del)
	return args.Error(0)
}
