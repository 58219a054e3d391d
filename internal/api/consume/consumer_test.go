package consume

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/ngthanhbui/imageflow-be/internal/api/domain"
	"github.com/ngthanhbui/imageflow-be/internal/api/model"
	"github.com/ngthanhbui/imageflow-be/internal/api/notify"
	"github.com/ngthanhbui/imageflow-be/shared/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mimics the real store's first-terminal-write-wins semantics.
type memStore struct {
	jobs        map[string]*model.Job
	unavailable bool
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*model.Job)}
}

func (m *memStore) addPending(jobID, ownerID string) {
	m.jobs[jobID] = &model.Job{
		JobID:   jobID,
		OwnerID: ownerID,
		Status:  domain.JobStatusPending,
	}
}

func (m *memStore) GetJobByID(_ context.Context, jobID string) (*model.Job, error) {
	if m.unavailable {
		return nil, domain.ErrStoreUnavailable
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) MarkJobTerminal(_ context.Context, jobID string, state domain.JobState) error {
	if m.unavailable {
		return domain.ErrStoreUnavailable
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return domain.ErrAlreadyTerminal
	}

	if result, ok := state.Result(); ok && result == "" {
		// the jobs table CHECK requires a result on every DONE row
		return fmt.Errorf("%w: done row without result", domain.ErrStoreUnavailable)
	}

	job.Status = state.Status()
	if result, ok := state.Result(); ok {
		job.Result.String = result
		job.Result.Valid = true
	}
	if reason, ok := state.Reason(); ok {
		job.ErrorMessage.String = reason
		job.ErrorMessage.Valid = true
	}
	return nil
}

type recordingNotifier struct {
	calls []notifyCall
}

type notifyCall struct {
	principalID string
	event       notify.Event
}

func (r *recordingNotifier) Notify(principalID string, event notify.Event) int {
	r.calls = append(r.calls, notifyCall{principalID: principalID, event: event})
	return 1
}

func newTestConsumer(store *memStore, notifier *recordingNotifier) *Consumer {
	return NewConsumer(store, notifier, nil, Config{
		ConsumerTag:   "test-consumer",
		PrefetchCount: 1,
	}, slog.New(slog.DiscardHandler))
}

func statusBody(t *testing.T, status message.Status) []byte {
	t.Helper()
	body, err := json.Marshal(status)
	require.NoError(t, err)
	return body
}

func TestProcess_SuccessAppliesAndNotifiesOwner(t *testing.T) {
	store := newMemStore()
	store.addPending("j1", "owner-1")
	notifier := &recordingNotifier{}
	c := newTestConsumer(store, notifier)

	action := c.process(context.Background(), statusBody(t, message.Status{
		JobID:      "j1",
		Success:    true,
		Result:     "Z3JheQ==",
		ReceivedAt: time.Now(),
	}))

	assert.Equal(t, ackMessage, action)

	job := store.jobs["j1"]
	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.True(t, job.Result.Valid)
	assert.Equal(t, "Z3JheQ==", job.Result.String)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "owner-1", notifier.calls[0].principalID)
	assert.Equal(t, "j1", notifier.calls[0].event.JobID)
	assert.True(t, notifier.calls[0].event.Success)
	assert.Equal(t, "Z3JheQ==", notifier.calls[0].event.Result)
}

func TestProcess_FailureAppliesWithoutResult(t *testing.T) {
	store := newMemStore()
	store.addPending("j1", "owner-1")
	notifier := &recordingNotifier{}
	c := newTestConsumer(store, notifier)

	action := c.process(context.Background(), statusBody(t, message.Status{
		JobID:   "j1",
		Success: false,
		Error:   "unsupported operation",
	}))

	assert.Equal(t, ackMessage, action)

	job := store.jobs["j1"]
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.False(t, job.Result.Valid)
	assert.Equal(t, "unsupported operation", job.ErrorMessage.String)
}

func TestProcess_DuplicateTerminalIsNoOpButStillForwarded(t *testing.T) {
	store := newMemStore()
	store.addPending("j1", "owner-1")
	notifier := &recordingNotifier{}
	c := newTestConsumer(store, notifier)

	body := statusBody(t, message.Status{JobID: "j1", Success: true, Result: "Z3JheQ=="})

	require.Equal(t, ackMessage, c.process(context.Background(), body))
	require.Equal(t, ackMessage, c.process(context.Background(), body))

	// Store unchanged, no error, event forwarded both times
	assert.Equal(t, domain.JobStatusDone, store.jobs["j1"].Status)
	assert.Equal(t, "Z3JheQ==", store.jobs["j1"].Result.String)
	assert.Len(t, notifier.calls, 2)
}

func TestProcess_ConflictingTerminalsFirstWriteWins(t *testing.T) {
	tests := []struct {
		name       string
		first      message.Status
		second     message.Status
		wantStatus string
	}{
		{
			name:       "done then failed",
			first:      message.Status{JobID: "j1", Success: true, Result: "Z3JheQ=="},
			second:     message.Status{JobID: "j1", Success: false, Error: "late failure"},
			wantStatus: domain.JobStatusDone,
		},
		{
			name:       "failed then done",
			first:      message.Status{JobID: "j1", Success: false, Error: "early failure"},
			second:     message.Status{JobID: "j1", Success: true, Result: "Z3JheQ=="},
			wantStatus: domain.JobStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.addPending("j1", "owner-1")
			c := newTestConsumer(store, &recordingNotifier{})

			require.Equal(t, ackMessage, c.process(context.Background(), statusBody(t, tt.first)))
			require.Equal(t, ackMessage, c.process(context.Background(), statusBody(t, tt.second)))

			assert.Equal(t, tt.wantStatus, store.jobs["j1"].Status)
		})
	}
}

func TestProcess_OrphanMessageDropped(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	c := newTestConsumer(store, notifier)

	action := c.process(context.Background(), statusBody(t, message.Status{
		JobID:   "never-created",
		Success: true,
		Result:  "Z3JheQ==",
	}))

	// Dropped without mutating the store and without notifying anyone
	assert.Equal(t, ackMessage, action)
	assert.Empty(t, store.jobs)
	assert.Empty(t, notifier.calls)
}

func TestProcess_SuccessWithoutResultDropped(t *testing.T) {
	store := newMemStore()
	store.addPending("j1", "owner-1")
	notifier := &recordingNotifier{}
	c := newTestConsumer(store, notifier)

	action := c.process(context.Background(), statusBody(t, message.Status{
		JobID:   "j1",
		Success: true,
	}))

	// Dropped, never requeued: the store can never accept a DONE row
	// without a result, so redelivery would loop forever.
	assert.Equal(t, nackDrop, action)
	assert.Equal(t, domain.JobStatusPending, store.jobs["j1"].Status)
	assert.Empty(t, notifier.calls)
}

func TestProcess_StoreUnavailableRequeues(t *testing.T) {
	store := newMemStore()
	store.addPending("j1", "owner-1")
	store.unavailable = true
	notifier := &recordingNotifier{}
	c := newTestConsumer(store, notifier)

	action := c.process(context.Background(), statusBody(t, message.Status{
		JobID:   "j1",
		Success: true,
		Result:  "Z3JheQ==",
	}))

	assert.Equal(t, nackRequeue, action)
	assert.Empty(t, notifier.calls)
}

func TestProcess_MalformedMessageDropped(t *testing.T) {
	c := newTestConsumer(newMemStore(), &recordingNotifier{})

	assert.Equal(t, nackDrop, c.process(context.Background(), []byte("not json")))
	assert.Equal(t, nackDrop, c.process(context.Background(), []byte(`{"success":true}`)))
}
