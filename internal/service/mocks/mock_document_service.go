package mocks

import (
	"context"

	"docview/internal/model"
	"docview/internal/reconcile"
	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) EnsureConverged(ctx context.Context, class model.Class) (reconcile.Result, error) {
	args := m.Called(ctx, class)
	return args.Get(0).(reconcile.Result), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, class model.Class) ([]model.DocumentRecord, error) {
	args := m.Called(ctx, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DocumentRecord), args.Error(1)
}

func (m *MockDocumentService) OpenDocument(ctx context.Context, filename string) ([]model.Page, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Page), args.Error(1)
}

func (m *MockDocumentService) PreviewExcerpt(ctx context.Context, filename string) ([]string, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDocumentService) PreviewNotices(ctx context.Context) ([]model.Excerpt, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Excerpt), args.Error(1)
}

func (m *MockDocumentService) SourcePath(ctx context.Context, class model.Class, filename string) (string, error) {
	args := m.Called(ctx, class, filename)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) PageURL(ctx context.Context, filename string, n int) (string, error) {
	args := m.Called(ctx, filename, n)
	return args.String(0), args.Error(1)
}
