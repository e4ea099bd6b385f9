package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult_BuilderChain(t *testing.T) {
	r := NewResult(42).
		WithStatus(StatusCompleted).
		WithParameter("output_path", "/tmp/out.mp4").
		WithParameter("duration", int64(120))

	assert.Equal(t, uint64(42), r.JobID)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Len(t, r.Parameters, 2)
	assert.Equal(t, "output_path", r.Parameters[0].ID)
	assert.Equal(t, "/tmp/out.mp4", r.Parameters[0].Value)
	assert.False(t, r.CreatedAt.IsZero())
}

func TestResult_WithMessageForErrors(t *testing.T) {
	r := NewResult(1).WithStatus(StatusError).WithMessage("ffmpeg exited 1")
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, "ffmpeg exited 1", r.Message)
}

func TestProgression_ClampPercent(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-50, 0}, {0, 0}, {25, 25}, {100, 100}, {150, 100}, {1000000, 100}, {-1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampPercent(tt.in))
	}
}

func TestNewProgression_CarriesJobID(t *testing.T) {
	p := NewProgression(7, 42)
	assert.Equal(t, uint64(7), p.JobID)
	assert.Equal(t, 42, p.Progress)
	assert.False(t, p.CreatedAt.IsZero())
}
