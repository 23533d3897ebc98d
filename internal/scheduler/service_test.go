package scheduler

import (
	"context"
	"testing"

	"github.com/domage/github-trend-analyzer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunDigest(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestService_Start(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *config.Config
		wantErr     bool
		wantEntries int
	}{
		{
			name:        "disabled digest schedules nothing",
			cfg:         &config.Config{DigestEnabled: false, DigestSchedule: "0 0 9 * * MON"},
			wantEntries: 0,
		},
		{
			name:        "weekly digest",
			cfg:         &config.Config{DigestEnabled: true, DigestSchedule: "0 0 9 * * MON"},
			wantEntries: 1,
		},
		{
			name:    "invalid expression",
			cfg:     &config.Config{DigestEnabled: true, DigestSchedule: "0 9 * * MON"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{}
			service := NewService(tt.cfg, runner)
			defer service.Stop()

			err := service.Start()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEntries, service.Entries())
			runner.AssertNotCalled(t, "RunDigest", mock.Anything)
		})
	}
}
