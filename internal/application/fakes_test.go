package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
	"github.com/ericfisherdev/vaultsync/internal/domain/port/driven"
)

// --- Fake VaultAPI ---

type fakeVaultAPI struct {
	mu sync.Mutex

	sessionUserID string
	sessionErr    error

	vault     []model.Credential
	vaultErr  error
	changed   []model.Credential
	sinceArgs []time.Time
	sinceGate chan struct{} // When set, ListVaultSince waits for it to close.

	createFn  func(userID int64, fields model.CredentialFields) (model.Credential, error)
	updateFn  func(userID, id int64, fields model.CredentialFields) (model.Credential, error)
	deleteErr error

	password  string
	revealErr error

	appended  []model.AuditEntry
	appendErr error
	auditLog  []model.AuditEntry
	auditErr  error

	calls []string
}

// newFakeVaultAPI returns a fake whose session belongs to userID.
func newFakeVaultAPI(userID string) *fakeVaultAPI {
	return &fakeVaultAPI{sessionUserID: userID}
}

func (f *fakeVaultAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

// called reports whether the named method was invoked.
func (f *fakeVaultAPI) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

// remoteWrites counts calls that mutate remote state.
func (f *fakeVaultAPI) remoteWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		switch c {
		case "CreateCredential", "UpdateCredential", "DeleteCredential", "AppendAudit":
			n++
		}
	}
	return n
}

func (f *fakeVaultAPI) CurrentSession(_ context.Context) (model.Session, error) {
	f.record("CurrentSession")
	if f.sessionErr != nil {
		return model.Session{}, f.sessionErr
	}
	return model.Session{UserID: f.sessionUserID}, nil
}

func (f *fakeVaultAPI) ListVault(_ context.Context, _ int64) ([]model.Credential, error) {
	f.record("ListVault")
	return f.vault, f.vaultErr
}

func (f *fakeVaultAPI) ListVaultSince(_ context.Context, _ int64, since time.Time) ([]model.Credential, error) {
	f.record("ListVaultSince")
	if f.sinceGate != nil {
		<-f.sinceGate
	}
	f.mu.Lock()
	f.sinceArgs = append(f.sinceArgs, since)
	f.mu.Unlock()
	return f.changed, f.vaultErr
}

func (f *fakeVaultAPI) CreateCredential(_ context.Context, userID int64, fields model.CredentialFields) (model.Credential, error) {
	f.record("CreateCredential")
	if f.createFn != nil {
		return f.createFn(userID, fields)
	}
	return model.Credential{}, errors.New("create not configured")
}

func (f *fakeVaultAPI) UpdateCredential(_ context.Context, userID, id int64, fields model.CredentialFields) (model.Credential, error) {
	f.record("UpdateCredential")
	if f.updateFn != nil {
		return f.updateFn(userID, id, fields)
	}
	return model.Credential{ID: id, UserID: userID}, nil
}

func (f *fakeVaultAPI) DeleteCredential(_ context.Context, _, _ int64) error {
	f.record("DeleteCredential")
	return f.deleteErr
}

func (f *fakeVaultAPI) RevealPassword(_ context.Context, _, _ int64) (string, error) {
	f.record("RevealPassword")
	return f.password, f.revealErr
}

func (f *fakeVaultAPI) AppendAudit(_ context.Context, entry model.AuditEntry) error {
	f.record("AppendAudit")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, entry)
	return f.appendErr
}

func (f *fakeVaultAPI) ListAudit(_ context.Context, _ int64) ([]model.AuditEntry, error) {
	f.record("ListAudit")
	return f.auditLog, f.auditErr
}

// --- Fake CredentialStore ---

// fakeStore keeps rows in memory. InTx works on a copy and swaps it in on
// commit, so a failed transaction leaves no trace.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[int64]model.Credential
	markers map[int64]time.Time
	commits int

	// failUpsertID makes Upsert and Insert fail for that id.
	failUpsertID int64
}

func newFakeStore(rows ...model.Credential) *fakeStore {
	s := &fakeStore{
		rows:    make(map[int64]model.Credential),
		markers: make(map[int64]time.Time),
	}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *fakeStore) row(id int64) (model.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	return c, ok
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeStore) ListByUser(_ context.Context, userID int64) ([]model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Credential{}
	for _, c := range s.rows {
		if c.UserID == userID {
			c.EncryptedPassword = ""
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Website != out[j].Website {
			return out[i].Website < out[j].Website
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) Get(_ context.Context, userID, id int64) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeStore) NewestUpdatedAt(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest time.Time
	var found bool
	for _, c := range s.rows {
		if c.UserID == userID && (!found || c.UpdatedAt.After(newest)) {
			newest, found = c.UpdatedAt, true
		}
	}
	return newest, found, nil
}

func (s *fakeStore) SyncMarker(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.markers[userID]
	return t, ok, nil
}

func (s *fakeStore) InTx(_ context.Context, fn func(tx driven.CredentialTx) error) error {
	s.mu.Lock()
	tx := &fakeTx{
		rows:         make(map[int64]model.Credential, len(s.rows)),
		markers:      make(map[int64]time.Time, len(s.markers)),
		failUpsertID: s.failUpsertID,
	}
	for k, v := range s.rows {
		tx.rows[k] = v
	}
	for k, v := range s.markers {
		tx.markers[k] = v
	}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = tx.rows
	s.markers = tx.markers
	s.commits++
	return nil
}

type fakeTx struct {
	rows         map[int64]model.Credential
	markers      map[int64]time.Time
	failUpsertID int64
}

func (t *fakeTx) Get(_ context.Context, userID, id int64) (*model.Credential, error) {
	c, ok := t.rows[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	return &c, nil
}

func (t *fakeTx) FindByIdentity(_ context.Context, userID int64, website, username string) (*model.Credential, error) {
	for _, c := range t.rows {
		if c.UserID == userID && c.Website == website && c.Username == username {
			return &c, nil
		}
	}
	return nil, nil
}

func (t *fakeTx) Upsert(_ context.Context, c model.Credential) error {
	if c.ID == t.failUpsertID {
		return errors.New("disk full")
	}
	if existing, ok := t.rows[c.ID]; ok && c.EncryptedPassword == "" {
		c.EncryptedPassword = existing.EncryptedPassword
	}
	t.rows[c.ID] = c
	return nil
}

func (t *fakeTx) Insert(_ context.Context, c model.Credential) error {
	if c.ID == t.failUpsertID {
		return errors.New("disk full")
	}
	if _, ok := t.rows[c.ID]; ok {
		return driven.ErrCredentialExists
	}
	t.rows[c.ID] = c
	return nil
}

func (t *fakeTx) Update(_ context.Context, userID, id int64, fields model.CredentialFields, encryptedPassword *string, updatedAt time.Time) (bool, error) {
	c, ok := t.rows[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	if fields.Website != nil {
		c.Website = *fields.Website
	}
	if fields.Username != nil {
		c.Username = *fields.Username
	}
	if encryptedPassword != nil {
		c.EncryptedPassword = *encryptedPassword
	}
	c.UpdatedAt = updatedAt
	t.rows[id] = c
	return true, nil
}

func (t *fakeTx) Delete(_ context.Context, userID, id int64) (bool, error) {
	c, ok := t.rows[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(t.rows, id)
	return true, nil
}

func (t *fakeTx) SetSyncMarker(_ context.Context, userID int64, at time.Time) error {
	t.markers[userID] = at
	return nil
}

// --- Helpers ---

func strPtr(s string) *string { return &s }

func remoteItem(id int64, website, username string, updatedAt time.Time) model.Credential {
	return model.Credential{
		ID:                id,
		UserID:            1,
		Website:           website,
		Username:          username,
		EncryptedPassword: "enc-" + username,
		CreatedAt:         updatedAt,
		UpdatedAt:         updatedAt,
	}
}
