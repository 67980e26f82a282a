package application

import "time"

// SetNow replaces the clock used to stamp sync boundaries and defaults.
func (s *SyncService) SetNow(now func() time.Time) { s.now = now }

// SetNow replaces the clock used to stamp local writes.
func (s *CredentialService) SetNow(now func() time.Time) { s.now = now }
