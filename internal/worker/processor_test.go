package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngthanhbui/imageflow-be/internal/worker/domain"
	"github.com/ngthanhbui/imageflow-be/shared/message"
)

func newTestWorker(t *testing.T, taskTimeout time.Duration) *Worker {
	t.Helper()

	return NewWorker(&Config{
		Logger:      slog.New(slog.DiscardHandler),
		Concurrency: 1,
		TaskTimeout: taskTimeout,
	})
}

func testPayload(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestProcessTaskSuccess(t *testing.T) {
	w := newTestWorker(t, 5*time.Second)

	task := message.Task{
		JobID:     "a2f1a815-31c4-4a2c-9131-4d1e7d0f31a0",
		OwnerID:   "owner-1",
		Operation: "invert",
		Payload:   testPayload(t),
	}

	status := w.processTask(context.Background(), task)

	assert.True(t, status.Success)
	assert.Equal(t, task.JobID, status.JobID)
	assert.NotEmpty(t, status.Result)
	assert.Empty(t, status.Error)

	raw, err := base64.StdEncoding.DecodeString(status.Result)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
}

func TestProcessTaskFailure(t *testing.T) {
	w := newTestWorker(t, 5*time.Second)

	tests := []struct {
		name string
		task message.Task
	}{
		{
			name: "unsupported operation",
			task: message.Task{
				JobID:     "a2f1a815-31c4-4a2c-9131-4d1e7d0f31a0",
				Operation: "rotate",
				Payload:   testPayload(t),
			},
		},
		{
			name: "corrupt payload",
			task: message.Task{
				JobID:     "a2f1a815-31c4-4a2c-9131-4d1e7d0f31a0",
				Operation: "grayscale",
				Payload:   "not-an-image",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := w.processTask(context.Background(), tt.task)

			assert.False(t, status.Success)
			assert.Equal(t, tt.task.JobID, status.JobID)
			assert.Empty(t, status.Result)
			assert.NotEmpty(t, status.Error)
		})
	}
}

func TestShouldRequeue(t *testing.T) {
	w := newTestWorker(t, time.Second)

	assert.True(t, w.shouldRequeue(domain.NewRetryableError(errors.New("broker down"))))
	assert.True(t, w.shouldRequeue(fmt.Errorf("settle: %w", domain.NewRetryableError(errors.New("broker down")))))
	assert.False(t, w.shouldRequeue(errors.New("marshal status message")))
	assert.False(t, w.shouldRequeue(nil))
}

func TestProcessTaskCanceled(t *testing.T) {
	w := newTestWorker(t, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status := w.processTask(ctx, message.Task{
		JobID:     "a2f1a815-31c4-4a2c-9131-4d1e7d0f31a0",
		Operation: "grayscale",
		Payload:   testPayload(t),
	})

	// Cancellation may race with a fast transform; either outcome must
	// carry the job id so the status can still be correlated.
	assert.Equal(t, "a2f1a815-31c4-4a2c-9131-4d1e7d0f31a0", status.JobID)
}
