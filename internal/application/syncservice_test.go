package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vaultsync/internal/application"
	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

var syncClock = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newSyncService(api *fakeVaultAPI, store *fakeStore, userID int64) *application.SyncService {
	svc := application.NewSyncService(api, store, application.NewSessionValidator(api), userID, time.Hour)
	svc.SetNow(func() time.Time { return syncClock })
	return svc
}

func TestSyncAll_UpsertsTrimmedItems(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vault = []model.Credential{
		remoteItem(1, "  example.com ", " alice ", syncClock.Add(-time.Hour)),
		remoteItem(2, "other.example", "bob", syncClock.Add(-2*time.Hour)),
	}
	store := newFakeStore()

	result, err := newSyncService(api, store, 0).SyncAll(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, application.SyncResult{Inserted: 2, Total: 2, Skipped: 0}, result)

	got, ok := store.row(1)
	require.True(t, ok)
	assert.Equal(t, "example.com", got.Website)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, int64(1), got.UserID)
}

func TestSyncAll_Idempotent(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vault = []model.Credential{
		remoteItem(1, "a.example", "a", syncClock.Add(-time.Hour)),
		remoteItem(2, "b.example", "b", syncClock.Add(-time.Hour)),
	}
	store := newFakeStore()
	svc := newSyncService(api, store, 0)

	_, err := svc.SyncAll(context.Background(), 1)
	require.NoError(t, err)
	first, err := store.ListByUser(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.SyncAll(context.Background(), 1)
	require.NoError(t, err)
	second, err := store.ListByUser(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, store.count())
}

func TestSyncAll_SkipsMissingFieldsAndCommitsRest(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vault = []model.Credential{
		remoteItem(1, "a.example", "a", syncClock),
		remoteItem(2, "b.example", "   ", syncClock),
		remoteItem(3, "", "c", syncClock),
		remoteItem(4, "d.example", "d", syncClock),
	}
	store := newFakeStore()

	result, err := newSyncService(api, store, 0).SyncAll(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, application.SyncResult{Inserted: 2, Total: 4, Skipped: 2}, result)

	_, ok := store.row(4)
	assert.True(t, ok, "item after a skipped one must still be committed")
	_, ok = store.row(2)
	assert.False(t, ok)
}

func TestSyncAll_MissingTimestampsDefaultToNow(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vault = []model.Credential{{ID: 9, Website: "x.example", Username: "x"}}
	store := newFakeStore()

	_, err := newSyncService(api, store, 0).SyncAll(context.Background(), 1)
	require.NoError(t, err)

	got, ok := store.row(9)
	require.True(t, ok)
	assert.Equal(t, syncClock, got.CreatedAt)
	assert.Equal(t, syncClock, got.UpdatedAt)
}

func TestSyncAll_MissingTimestampsKeepStoredValues(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vault = []model.Credential{{ID: 9, Website: "x.example", Username: "x"}}
	store := newFakeStore()
	svc := newSyncService(api, store, 0)

	_, err := svc.SyncAll(context.Background(), 1)
	require.NoError(t, err)
	first, ok := store.row(9)
	require.True(t, ok)

	svc.SetNow(func() time.Time { return syncClock.Add(time.Hour) })
	_, err = svc.SyncAll(context.Background(), 1)
	require.NoError(t, err)

	second, ok := store.row(9)
	require.True(t, ok)
	assert.Equal(t, first, second, "an unchanged remote must leave the row unchanged")
	assert.Equal(t, syncClock, second.UpdatedAt)
}

func TestSyncAll_EmptyVault(t *testing.T) {
	api := newFakeVaultAPI("1")
	store := newFakeStore()

	result, err := newSyncService(api, store, 0).SyncAll(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, application.SyncResult{}, result)
	assert.Equal(t, 0, store.commits)
}

func TestSyncAll_StoreFailureRollsBackEverything(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vault = []model.Credential{
		remoteItem(1, "a.example", "a", syncClock),
		remoteItem(2, "b.example", "b", syncClock),
	}
	store := newFakeStore()
	store.failUpsertID = 2

	_, err := newSyncService(api, store, 0).SyncAll(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, model.CodeClientError, model.CodeOf(err))
	assert.Equal(t, 0, store.count())
}

func TestSyncAll_RemoteRejectionSurfaces(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vaultErr = model.Errorf(model.CodeInvalidResponse, "invalid response from server")
	store := newFakeStore()

	_, err := newSyncService(api, store, 0).SyncAll(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrInvalidResponse)
	assert.Equal(t, 0, store.commits)
}

func TestSyncAll_AccessDeniedTouchesNothing(t *testing.T) {
	api := newFakeVaultAPI("2")
	store := newFakeStore()

	_, err := newSyncService(api, store, 0).SyncAll(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
	assert.False(t, api.called("ListVault"))
	assert.Equal(t, 0, store.commits)
}

func TestSyncIncremental_BoundaryFallbacks(t *testing.T) {
	t.Run("epoch when store is empty", func(t *testing.T) {
		api := newFakeVaultAPI("1")
		_, err := newSyncService(api, newFakeStore(), 0).SyncIncremental(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, api.sinceArgs, 1)
		assert.Equal(t, time.Unix(0, 0).UTC(), api.sinceArgs[0])
	})

	t.Run("newest local row without marker", func(t *testing.T) {
		api := newFakeVaultAPI("1")
		newest := syncClock.Add(-30 * time.Minute)
		store := newFakeStore(
			remoteItem(1, "a", "a", syncClock.Add(-2*time.Hour)),
			remoteItem(2, "b", "b", newest),
		)
		_, err := newSyncService(api, store, 0).SyncIncremental(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, api.sinceArgs, 1)
		assert.Equal(t, newest, api.sinceArgs[0])
	})

	t.Run("marker wins", func(t *testing.T) {
		api := newFakeVaultAPI("1")
		store := newFakeStore(remoteItem(1, "a", "a", syncClock.Add(-time.Minute)))
		marker := syncClock.Add(-10 * time.Hour)
		store.markers[1] = marker

		_, err := newSyncService(api, store, 0).SyncIncremental(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, api.sinceArgs, 1)
		assert.Equal(t, marker, api.sinceArgs[0])
	})
}

func TestSyncIncremental_InsertsUpdatesAndNeverRegresses(t *testing.T) {
	stored := syncClock.Add(-time.Hour)
	store := newFakeStore(
		remoteItem(1, "newer.example", "a", stored),
		remoteItem(2, "older.example", "b", stored),
		remoteItem(3, "same.example", "c", stored),
		remoteItem(4, "nostamp.example", "d", stored),
	)

	api := newFakeVaultAPI("1")
	api.changed = []model.Credential{
		remoteItem(1, "newer.example", "a-renamed", stored.Add(time.Minute)),
		remoteItem(2, "older.example", "b-stale", stored.Add(-time.Minute)),
		remoteItem(3, "same.example", "c-same", stored),
		{ID: 4, Website: "nostamp.example", Username: "d-nostamp"},
		remoteItem(5, "fresh.example", "e", stored),
	}

	result, err := newSyncService(api, store, 0).SyncIncremental(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, syncClock, result.LastSync)

	got, _ := store.row(1)
	assert.Equal(t, "a-renamed", got.Username)
	assert.Equal(t, stored.Add(time.Minute), got.UpdatedAt)

	for id, want := range map[int64]string{2: "b", 3: "c", 4: "d"} {
		got, _ := store.row(id)
		assert.Equal(t, want, got.Username, "row %d must not regress", id)
		assert.Equal(t, stored, got.UpdatedAt)
	}

	_, ok := store.row(5)
	assert.True(t, ok)

	marker, ok, err := store.SyncMarker(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, syncClock, marker)
}

func TestSyncIncremental_FailureLeavesMarkerUntouched(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.changed = []model.Credential{
		remoteItem(1, "a.example", "a", syncClock),
		remoteItem(2, "b.example", "b", syncClock),
	}
	store := newFakeStore()
	store.failUpsertID = 2

	_, err := newSyncService(api, store, 0).SyncIncremental(context.Background(), 1)
	require.Error(t, err)

	_, ok, err := store.SyncMarker(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.count())
}

func TestSyncIncremental_SkipsIDOwnedByAnotherUser(t *testing.T) {
	other := remoteItem(1, "a.example", "a", syncClock)
	other.UserID = 2
	store := newFakeStore(other)

	api := newFakeVaultAPI("1")
	api.changed = []model.Credential{
		remoteItem(1, "a.example", "a", syncClock),
		remoteItem(3, "c.example", "c", syncClock),
	}

	result, err := newSyncService(api, store, 0).SyncIncremental(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	got, _ := store.row(1)
	assert.Equal(t, int64(2), got.UserID)
}

func TestSyncIncremental_AccessDenied(t *testing.T) {
	api := newFakeVaultAPI("9")
	store := newFakeStore()

	_, err := newSyncService(api, store, 0).SyncIncremental(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
	assert.False(t, api.called("ListVaultSince"))
	assert.Equal(t, 0, store.commits)
}

func TestSyncService_StartServesQueuedPasses(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vault = []model.Credential{remoteItem(1, "a.example", "a", syncClock)}
	api.sinceGate = make(chan struct{})
	store := newFakeStore()
	svc := newSyncService(api, store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return api.called("ListVaultSince") }, 5*time.Second, 5*time.Millisecond,
		"initial pass is incremental")

	type fullOutcome struct {
		result application.SyncResult
		err    error
	}
	queued := make(chan fullOutcome, 1)
	go func() {
		runCtx, runCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer runCancel()
		result, err := svc.RunFull(runCtx, 1)
		queued <- fullOutcome{result, err}
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, api.called("ListVault"), "manual pass waits for the running loop pass")

	close(api.sinceGate)

	select {
	case got := <-queued:
		require.NoError(t, got.err)
		assert.Equal(t, application.SyncResult{Inserted: 1, Total: 1}, got.result)
	case <-time.After(5 * time.Second):
		t.Fatal("queued pass did not complete")
	}
	_, ok := store.row(1)
	assert.True(t, ok)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync service did not stop")
	}
}

func TestSyncService_RunWithoutLoopSyncsDirectly(t *testing.T) {
	api := newFakeVaultAPI("1")
	api.vault = []model.Credential{remoteItem(1, "a.example", "a", syncClock)}
	api.changed = []model.Credential{remoteItem(2, "b.example", "b", syncClock)}
	store := newFakeStore()

	// Loop user configured but Start never called, as in the one-shot CLI.
	svc := newSyncService(api, store, 1)

	full, err := svc.RunFull(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, full.Inserted)

	incr, err := svc.RunIncremental(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, incr.Synced)
	assert.Equal(t, syncClock, incr.LastSync)
}

func TestSyncService_RunForOtherUserBypassesLoop(t *testing.T) {
	api := newFakeVaultAPI("2")
	api.vault = []model.Credential{{ID: 5, UserID: 2, Website: "c.example", Username: "c"}}
	store := newFakeStore()
	svc := newSyncService(api, store, 0)

	result, err := svc.RunFull(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	_, err = svc.RunIncremental(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
}
