package delta

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/panbanda/coremetrics/pkg/analyzer/metrics"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Parent(ctx context.Context, hash string) (string, error) {
	args := m.Called(ctx, hash)
	return args.String(0), args.Error(1)
}

func (m *mockRepository) ChangedFiles(ctx context.Context, hash string, extensions []string) ([]string, error) {
	args := m.Called(ctx, hash, extensions)
	paths, _ := args.Get(0).([]string)
	return paths, args.Error(1)
}

func (m *mockRepository) ExportSparse(ctx context.Context, hash string, paths []string, dest string) (int, error) {
	args := m.Called(ctx, hash, paths, dest)
	return args.Int(0), args.Error(1)
}

type mockMeasurer struct {
	mock.Mock
}

func (m *mockMeasurer) Measure(ctx context.Context, dir string) metrics.Result {
	args := m.Called(ctx, dir)
	return args.Get(0).(metrics.Result)
}
