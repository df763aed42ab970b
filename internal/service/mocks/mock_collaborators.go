package mocks

import (
	"context"

	"docview/internal/model"
	"docview/internal/reconcile"
	"github.com/stretchr/testify/mock"
)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, class model.Class) (reconcile.Result, error) {
	args := m.Called(ctx, class)
	return args.Get(0).(reconcile.Result), args.Error(1)
}

type MockPageRenderer struct {
	mock.Mock
}

func (m *MockPageRenderer) Pages(ctx context.Context, filename string) ([]model.Page, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Page), args.Error(1)
}

func (m *MockPageRenderer) PageURL(ctx context.Context, filename string, n int) (string, error) {
	args := m.Called(ctx, filename, n)
	return args.String(0), args.Error(1)
}

func (m *MockPageRenderer) Invalidate(ctx context.Context, filename string) error {
	args := m.Called(ctx, filename)
	return args.Error(0)
}

type MockExcerptSource struct {
	mock.Mock
}

func (m *MockExcerptSource) Lines(ctx context.Context, path string) ([]string, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockExcerptSource) Forget(path string) {
	m.Called(path)
}
