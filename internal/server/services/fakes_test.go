package services

import (
	"context"
	"database/sql"
	"sync"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/server/lockout"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
	"github.com/dmitrijs2005/cloakvault/internal/server/provider"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/attempts"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/locks"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/records"
)

type fakeProfiles struct {
	byEmail   map[string]string
	usernames map[string]bool
	created   []*models.Profile

	lookupErr error
	existsErr error
	createErr error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{byEmail: map[string]string{}, usernames: map[string]bool{}}
}

func (f *fakeProfiles) Create(_ context.Context, p *models.Profile) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, p)
	f.byEmail[p.Email] = p.UserID
	f.usernames[p.Username] = true
	return nil
}

func (f *fakeProfiles) UserIDByEmail(_ context.Context, email string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	id, ok := f.byEmail[email]
	if !ok {
		return "", common.ErrorNotFound
	}
	return id, nil
}

func (f *fakeProfiles) UsernameExists(_ context.Context, username string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.usernames[username], nil
}

func (f *fakeProfiles) SetLocked(context.Context, string, bool) error { return nil }

type fakeRecords struct {
	recs   map[string]*models.EncryptedRecord
	getErr error
	putErr error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{recs: map[string]*models.EncryptedRecord{}}
}

func (f *fakeRecords) Get(_ context.Context, userID string) (*models.EncryptedRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.recs[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRecords) Put(_ context.Context, r *models.EncryptedRecord) error {
	if f.putErr != nil {
		return f.putErr
	}
	cp := *r
	f.recs[r.UserID] = &cp
	return nil
}

type fakeRepoManager struct {
	profiles *fakeProfiles
	records  *fakeRecords
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{profiles: newFakeProfiles(), records: newFakeRecords()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Attempts(dbx.DBTX) attempts.Repository        { return nil }
func (m *fakeRepoManager) Locks(dbx.DBTX) locks.Repository              { return nil }
func (m *fakeRepoManager) Profiles(dbx.DBTX) profiles.Repository        { return m.profiles }
func (m *fakeRepoManager) Records(dbx.DBTX) records.Repository          { return m.records }

type fakeVerifier struct {
	result provider.Result
	calls  int
}

func (f *fakeVerifier) VerifyCredentials(context.Context, string, string) provider.Result {
	f.calls++
	return f.result
}

type fakeRegistrar struct {
	id  string
	err error
}

func (f *fakeRegistrar) SignUp(context.Context, string, string) (string, error) {
	return f.id, f.err
}

type fakePolicy struct {
	mu sync.Mutex

	status      lockout.Status
	decision    lockout.Decision
	evaluateErr error
	resetErr    error

	attempts  []models.LoginAttempt
	checked   []string
	evaluated []string
	reset     []string
}

func (f *fakePolicy) CheckLockStatus(_ context.Context, userID string) lockout.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, userID)
	return f.status
}

func (f *fakePolicy) RecordAttempt(_ context.Context, a *models.LoginAttempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *a)
}

func (f *fakePolicy) EvaluateThreshold(_ context.Context, userID string) (lockout.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, userID)
	return f.decision, f.evaluateErr
}

func (f *fakePolicy) ResetOnSuccess(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = append(f.reset, userID)
	return f.resetErr
}
