package hold

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/robertarktes/event-ticketing/internal/adapters/redis"
)

type fakeDurableStore struct {
	expiries map[uuid.UUID]*time.Time
	cleared  [][]uuid.UUID
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{expiries: map[uuid.UUID]*time.Time{}}
}

func (f *fakeDurableStore) GetTicketHoldExpiry(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	return f.expiries[id], nil
}

func (f *fakeDurableStore) SetTicketHoldExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	f.expiries[id] = &expiresAt
	return nil
}

func (f *fakeDurableStore) ClearTicketHoldExpiry(ctx context.Context, ids []uuid.UUID) error {
	f.cleared = append(f.cleared, ids)
	for _, id := range ids {
		delete(f.expiries, id)
	}
	return nil
}

func setupManager(t *testing.T, durable *fakeDurableStore, ttl time.Duration) (*Manager, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	locks := redisadapter.NewLockStore(client)
	return NewManager(durable, locks, ttl, observability.NewLogger()), mock
}

func TestManager_Hold_AcquiresAllTickets(t *testing.T) {
	durable := newFakeDurableStore()
	m, mock := setupManager(t, durable, 10*time.Minute)

	t1, t2 := uuid.New(), uuid.New()
	mock.ExpectSetNX("hold:"+t1.String(), "buyer-1", 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("hold:"+t2.String(), "buyer-1", 10*time.Minute).SetVal(true)

	err := m.Hold(context.Background(), []uuid.UUID{t1, t2}, "buyer-1")
	require.NoError(t, err)

	require.NotNil(t, durable.expiries[t1])
	require.NotNil(t, durable.expiries[t2])
	assert.True(t, durable.expiries[t1].After(time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Hold_ConflictRollsBackAcquired(t *testing.T) {
	durable := newFakeDurableStore()
	m, mock := setupManager(t, durable, 10*time.Minute)

	t1, t2 := uuid.New(), uuid.New()
	mock.ExpectSetNX("hold:"+t1.String(), "buyer-1", 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("hold:"+t2.String(), "buyer-1", 10*time.Minute).SetVal(false)
	// rollback of the first ticket
	mock.ExpectDel("hold:" + t1.String()).SetVal(1)

	err := m.Hold(context.Background(), []uuid.UUID{t1, t2}, "buyer-1")
	require.ErrorIs(t, err, domain.ErrConflict)

	assert.Nil(t, durable.expiries[t1], "partial hold must be rolled back")
	assert.Nil(t, durable.expiries[t2])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Hold_DurableExpiryBlocksAcquisition(t *testing.T) {
	durable := newFakeDurableStore()
	m, mock := setupManager(t, durable, 10*time.Minute)

	ticket := uuid.New()
	future := time.Now().Add(5 * time.Minute)
	durable.expiries[ticket] = &future

	// No SetNX expected: the durable check fails first, covering the case
	// where the Redis key expired before the durable record was swept.
	err := m.Hold(context.Background(), []uuid.UUID{ticket}, "buyer-2")
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Hold_StaleDurableExpiryIsIgnored(t *testing.T) {
	durable := newFakeDurableStore()
	m, mock := setupManager(t, durable, 10*time.Minute)

	ticket := uuid.New()
	past := time.Now().Add(-time.Minute)
	durable.expiries[ticket] = &past

	mock.ExpectSetNX("hold:"+ticket.String(), "buyer-1", 10*time.Minute).SetVal(true)

	err := m.Hold(context.Background(), []uuid.UUID{ticket}, "buyer-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Release_EmptyIsNoop(t *testing.T) {
	durable := newFakeDurableStore()
	m, mock := setupManager(t, durable, 10*time.Minute)

	require.NoError(t, m.Release(context.Background(), nil))
	assert.Empty(t, durable.cleared)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_HoldThenRelease_LeavesNothingBehind(t *testing.T) {
	durable := newFakeDurableStore()
	m, mock := setupManager(t, durable, 10*time.Minute)

	t1, t2 := uuid.New(), uuid.New()
	mock.ExpectSetNX("hold:"+t1.String(), "buyer-1", 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("hold:"+t2.String(), "buyer-1", 10*time.Minute).SetVal(true)
	mock.ExpectDel("hold:" + t1.String()).SetVal(1)
	mock.ExpectDel("hold:" + t2.String()).SetVal(1)

	ids := []uuid.UUID{t1, t2}
	require.NoError(t, m.Hold(context.Background(), ids, "buyer-1"))
	require.NoError(t, m.Release(context.Background(), ids))

	assert.Nil(t, durable.expiries[t1])
	assert.Nil(t, durable.expiries[t2])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_IsHeld(t *testing.T) {
	durable := newFakeDurableStore()
	m, mock := setupManager(t, durable, 10*time.Minute)

	ticket := uuid.New()
	mock.ExpectExists("hold:" + ticket.String()).SetVal(1)

	held, err := m.IsHeld(context.Background(), ticket)
	require.NoError(t, err)
	assert.True(t, held)
	require.NoError(t, mock.ExpectationsWereMet())
}
