package application

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
	"github.com/ericfisherdev/vaultsync/internal/domain/port/driven"
	"github.com/ericfisherdev/vaultsync/internal/metrics"
)

const (
	syncModeFull        = "full"
	syncModeIncremental = "incremental"
)

// SyncResult reports a full sync pass. Skipped = Total - Inserted.
type SyncResult struct {
	Inserted int
	Total    int
	Skipped  int
}

// IncrementalResult reports an incremental pass. LastSync is the boundary
// recorded for the next pass.
type IncrementalResult struct {
	Synced   int
	LastSync time.Time
}

// refreshRequest represents a manual sync trigger served by the loop.
type refreshRequest struct {
	full bool
	done chan passResult
}

// passResult carries the outcome of one loop pass back to a waiting caller.
type passResult struct {
	full        SyncResult
	incremental IncrementalResult
	err         error
}

// SyncService mirrors the remote vault into the local store, on demand and
// on a fixed interval for the configured user.
type SyncService struct {
	api       driven.VaultAPI
	store     driven.CredentialStore
	validator *SessionValidator
	userID    int64
	interval  time.Duration
	now       func() time.Time
	refreshCh chan refreshRequest

	running  atomic.Bool
	loopDone chan struct{}
}

// NewSyncService creates a new SyncService. userID selects the account the
// periodic loop syncs; zero disables the loop but leaves SyncAll and
// SyncIncremental usable for any user.
func NewSyncService(
	api driven.VaultAPI,
	store driven.CredentialStore,
	validator *SessionValidator,
	userID int64,
	interval time.Duration,
) *SyncService {
	return &SyncService{
		api:       api,
		store:     store,
		validator: validator,
		userID:    userID,
		interval:  interval,
		now:       time.Now,
		refreshCh: make(chan refreshRequest),
		loopDone:  make(chan struct{}),
	}
}

// Start runs an immediate incremental sync, then one per interval. It also
// serves manual passes queued by RunFull and RunIncremental. Start blocks
// until the context is canceled.
func (s *SyncService) Start(ctx context.Context) {
	if s.userID <= 0 {
		slog.Info("sync loop disabled, no user configured")
		return
	}

	s.running.Store(true)
	defer func() {
		s.running.Store(false)
		close(s.loopDone)
	}()

	if res := s.runOnce(ctx, false); res.err != nil {
		slog.Error("initial sync failed", "user_id", s.userID, "error", res.err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync service stopped")
			return
		case <-ticker.C:
			if res := s.runOnce(ctx, false); res.err != nil {
				slog.Error("sync cycle failed", "user_id", s.userID, "error", res.err)
			}
		case req := <-s.refreshCh:
			req.done <- s.runOnce(ctx, req.full)
		}
	}
}

// RunFull runs a full pass for userID. Passes for the loop user are queued
// behind the running loop so they never overlap a ticker pass; other users,
// or the loop user while no loop runs, are synced directly.
func (s *SyncService) RunFull(ctx context.Context, userID int64) (SyncResult, error) {
	if res, queued := s.enqueue(ctx, userID, true); queued {
		return res.full, res.err
	}
	return s.SyncAll(ctx, userID)
}

// RunIncremental is RunFull for an incremental pass.
func (s *SyncService) RunIncremental(ctx context.Context, userID int64) (IncrementalResult, error) {
	if res, queued := s.enqueue(ctx, userID, false); queued {
		return res.incremental, res.err
	}
	return s.SyncIncremental(ctx, userID)
}

// enqueue hands a pass to the loop and waits for it. It reports false when
// the pass must run on the caller's goroutine instead.
func (s *SyncService) enqueue(ctx context.Context, userID int64, full bool) (passResult, bool) {
	if userID <= 0 || userID != s.userID || !s.running.Load() {
		return passResult{}, false
	}

	req := refreshRequest{full: full, done: make(chan passResult, 1)}

	select {
	case s.refreshCh <- req:
	case <-s.loopDone:
		return passResult{}, false
	case <-ctx.Done():
		return passResult{err: ctx.Err()}, true
	}

	select {
	case res := <-req.done:
		return res, true
	case <-ctx.Done():
		return passResult{err: ctx.Err()}, true
	}
}

func (s *SyncService) runOnce(ctx context.Context, full bool) passResult {
	start := time.Now()

	if full {
		result, err := s.SyncAll(ctx, s.userID)
		if err != nil {
			return passResult{err: err}
		}
		slog.Info("full sync complete",
			"user_id", s.userID,
			"inserted", result.Inserted,
			"skipped", result.Skipped,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		return passResult{full: result}
	}

	result, err := s.SyncIncremental(ctx, s.userID)
	if err != nil {
		return passResult{err: err}
	}
	slog.Info("incremental sync complete",
		"user_id", s.userID,
		"synced", result.Synced,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return passResult{incremental: result}
}

// SyncAll fetches the whole remote vault and upserts every valid item in a
// single transaction. Items missing a website or username are skipped; any
// store failure rolls back the entire pass.
func (s *SyncService) SyncAll(ctx context.Context, userID int64) (result SyncResult, err error) {
	defer func() { recordSyncRun(syncModeFull, err) }()

	if userID <= 0 {
		return SyncResult{}, model.Errorf(model.CodeInvalidInput, "user id must be positive")
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return SyncResult{}, err
	}

	items, err := s.api.ListVault(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	result.Total = len(items)
	if len(items) == 0 {
		slog.Info("remote vault is empty", "user_id", userID)
		return result, nil
	}

	now := s.now().UTC()
	var inserted int
	err = s.store.InTx(ctx, func(tx driven.CredentialTx) error {
		inserted = 0
		for _, item := range items {
			cred, ok := prepareRemote(item, userID)
			if !ok {
				continue
			}
			existing, err := tx.Get(ctx, userID, cred.ID)
			if err != nil {
				return err
			}
			if err := tx.Upsert(ctx, stampTimes(cred, existing, now)); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return SyncResult{}, model.Classify(err, "failed to store vault items")
	}

	result.Inserted = inserted
	result.Skipped = result.Total - result.Inserted
	metrics.SyncItemsTotal.WithLabelValues(syncModeFull, "written").Add(float64(result.Inserted))
	metrics.SyncItemsTotal.WithLabelValues(syncModeFull, "skipped").Add(float64(result.Skipped))

	return result, nil
}

// SyncIncremental fetches items changed since the last boundary. New ids are
// inserted; existing rows are replaced only when the remote copy is strictly
// newer. The boundary advances to the pass start time in the same
// transaction as the row changes.
func (s *SyncService) SyncIncremental(ctx context.Context, userID int64) (result IncrementalResult, err error) {
	defer func() { recordSyncRun(syncModeIncremental, err) }()

	if userID <= 0 {
		return IncrementalResult{}, model.Errorf(model.CodeInvalidInput, "user id must be positive")
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return IncrementalResult{}, err
	}

	started := s.now().UTC()

	boundary, err := s.boundary(ctx, userID)
	if err != nil {
		return IncrementalResult{}, model.Classify(err, "failed to read sync boundary")
	}

	items, err := s.api.ListVaultSince(ctx, userID, boundary)
	if err != nil {
		return IncrementalResult{}, err
	}

	var synced, skipped, unchanged int
	err = s.store.InTx(ctx, func(tx driven.CredentialTx) error {
		synced, skipped, unchanged = 0, 0, 0
		for _, item := range items {
			cred, ok := prepareRemote(item, userID)
			if !ok {
				skipped++
				continue
			}

			existing, err := tx.Get(ctx, userID, cred.ID)
			if err != nil {
				return err
			}

			if existing == nil {
				err := tx.Insert(ctx, stampTimes(cred, nil, started))
				if errors.Is(err, driven.ErrCredentialExists) {
					slog.Warn("skipping vault item owned by another local user", "user_id", userID, "id", cred.ID)
					skipped++
					continue
				}
				if err != nil {
					return err
				}
				synced++
				continue
			}

			// A missing remote timestamp never wins over a stored one.
			if item.UpdatedAt.IsZero() || !item.UpdatedAt.After(existing.UpdatedAt) {
				unchanged++
				continue
			}
			if err := tx.Upsert(ctx, stampTimes(cred, existing, started)); err != nil {
				return err
			}
			synced++
		}
		return tx.SetSyncMarker(ctx, userID, started)
	})
	if err != nil {
		return IncrementalResult{}, model.Classify(err, "failed to store vault changes")
	}

	metrics.SyncItemsTotal.WithLabelValues(syncModeIncremental, "written").Add(float64(synced))
	metrics.SyncItemsTotal.WithLabelValues(syncModeIncremental, "skipped").Add(float64(skipped))
	metrics.SyncItemsTotal.WithLabelValues(syncModeIncremental, "unchanged").Add(float64(unchanged))

	return IncrementalResult{Synced: synced, LastSync: started}, nil
}

// boundary picks the persisted marker, else the newest local row, else the
// Unix epoch.
func (s *SyncService) boundary(ctx context.Context, userID int64) (time.Time, error) {
	marker, ok, err := s.store.SyncMarker(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return marker, nil
	}

	newest, ok, err := s.store.NewestUpdatedAt(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return newest, nil
	}

	return time.Unix(0, 0).UTC(), nil
}

// prepareRemote normalizes a remote item for the local mirror. It reports
// false for items that cannot be stored.
func prepareRemote(item model.Credential, userID int64) (model.Credential, bool) {
	cred := item.Trimmed()

	if cred.ID <= 0 {
		slog.Warn("skipping vault item without id", "user_id", userID)
		return model.Credential{}, false
	}
	if !cred.HasIdentity() {
		slog.Warn("skipping vault item with missing website or username", "user_id", userID, "id", cred.ID)
		return model.Credential{}, false
	}
	if cred.UserID != 0 && cred.UserID != userID {
		slog.Warn("skipping vault item for another user", "user_id", userID, "id", cred.ID, "item_user_id", cred.UserID)
		return model.Credential{}, false
	}

	cred.UserID = userID
	cred.Password = ""
	return cred, true
}

// stampTimes fills timestamps the remote omitted. A stored row keeps its own
// values so repeated passes leave it unchanged; only new rows take now.
func stampTimes(cred model.Credential, existing *model.Credential, now time.Time) model.Credential {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
		if existing != nil {
			cred.CreatedAt = existing.CreatedAt
		}
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = now
		if existing != nil {
			cred.UpdatedAt = existing.UpdatedAt
		}
	}
	return cred
}

func recordSyncRun(mode string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.SyncRunsTotal.WithLabelValues(mode, result).Inc()
}
