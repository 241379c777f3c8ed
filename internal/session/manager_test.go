package session

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
)

func TestManager_Create_SeedsEntryPointAndRuns(t *testing.T) {
	store := newMockStore()
	queue := &mockQueue{}
	m := NewManager(store, queue)

	sess, err := m.Create(context.Background(), "acme probe",
		entity.SchemeName, "Acme Corp", Config{})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, sess.Status)

	require.Len(t, queue.enqueued, 1)
	seed := queue.enqueued[0]
	assert.Equal(t, lead.TypeEntryPoint, seed.Type)
	assert.Equal(t, "Acme Corp", seed.TargetIdentifier)
	assert.Equal(t, lead.PriorityHighest, seed.Priority)
	assert.Equal(t, 1.0, seed.Confidence)
	assert.Equal(t, 0, queue.lastDepth)
}

func TestManager_Create_SeedFailureMarksFailed(t *testing.T) {
	store := newMockStore()
	queue := &mockQueue{enqueueErr: eris.New("queue unavailable")}
	m := NewManager(store, queue)

	_, err := m.Create(context.Background(), "acme probe",
		entity.SchemeName, "Acme Corp", Config{})
	require.Error(t, err)

	require.Len(t, store.sessions, 1)
	for id, s := range store.sessions {
		assert.Equal(t, StatusFailed, s.Status)
		assert.Contains(t, store.errors[id], "queue unavailable")
	}
}

func TestManager_Create_RejectsEmptyEntryPoint(t *testing.T) {
	m := NewManager(newMockStore(), &mockQueue{})
	_, err := m.Create(context.Background(), "x", entity.SchemeName, "", Config{})
	assert.Error(t, err)
}

func TestManager_PauseResume(t *testing.T) {
	store := newMockStore()
	m := NewManager(store, &mockQueue{})

	sess, err := m.Create(context.Background(), "p", entity.SchemeTaxID, "12-3456789", Config{})
	require.NoError(t, err)

	require.NoError(t, m.Pause(context.Background(), sess.ID))
	got, _ := store.Get(context.Background(), sess.ID)
	assert.Equal(t, StatusPaused, got.Status)

	require.NoError(t, m.Resume(context.Background(), sess.ID))
	got, _ = store.Get(context.Background(), sess.ID)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestManager_StateMachineClosure(t *testing.T) {
	store := newMockStore()
	m := NewManager(store, &mockQueue{})

	sess, err := m.Create(context.Background(), "c", entity.SchemeName, "Acme Corp", Config{})
	require.NoError(t, err)

	// Resume on a running session is invalid and must not mutate.
	err = m.Resume(context.Background(), sess.ID)
	require.ErrorIs(t, eris.Cause(err), ErrInvalidTransition)
	got, _ := store.Get(context.Background(), sess.ID)
	assert.Equal(t, StatusRunning, got.Status)

	// Pause on a completed session is invalid and must not mutate.
	require.NoError(t, m.Complete(context.Background(), sess.ID))
	err = m.Pause(context.Background(), sess.ID)
	require.ErrorIs(t, eris.Cause(err), ErrInvalidTransition)
	got, _ = store.Get(context.Background(), sess.ID)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestManager_Fail_FromPaused(t *testing.T) {
	store := newMockStore()
	m := NewManager(store, &mockQueue{})

	sess, err := m.Create(context.Background(), "f", entity.SchemeName, "Acme Corp", Config{})
	require.NoError(t, err)
	require.NoError(t, m.Pause(context.Background(), sess.ID))

	require.NoError(t, m.Fail(context.Background(), sess.ID, "connector meltdown"))
	got, _ := store.Get(context.Background(), sess.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "connector meltdown", got.Error)
}

func TestManager_Delete(t *testing.T) {
	store := newMockStore()
	m := NewManager(store, &mockQueue{})

	sess, err := m.Create(context.Background(), "d", entity.SchemeName, "Acme Corp", Config{})
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), sess.ID))
	got, err := m.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
