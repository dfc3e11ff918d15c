package app

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"loanops/api/internal/store"
)

// memStore is an in-memory dataStore for service and HTTP tests. It also
// satisfies authpw.UserStore so the auth flows can run against it.
type memStore struct {
	mu             sync.Mutex
	users          map[string]store.User
	bundles        map[string]store.QueryBundle
	messages       []store.ChatMessage
	actions        []store.ActionRecord
	responses      []store.ResponseRecord
	applications   map[string]store.ImportedApplication
	refreshByHash  map[string]refreshEntry
	revokedJTIs    map[string]bool
	passwordResets map[string]resetEntry

	failInsertResponse bool
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type resetEntry struct {
	userID string
	used   bool
}

func newMemStore() *memStore {
	return &memStore{
		users:          map[string]store.User{},
		bundles:        map[string]store.QueryBundle{},
		applications:   map[string]store.ImportedApplication{},
		refreshByHash:  map[string]refreshEntry{},
		revokedJTIs:    map[string]bool{},
		passwordResets: map[string]resetEntry{},
	}
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

// users

func (m *memStore) CreateUser(ctx context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	m.users[userID] = user
	return nil
}

func (m *memStore) VerifyUserEmail(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, user := range m.users {
		if user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			m.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *memStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwordResets[token] = resetEntry{userID: userID}
	return nil
}

func (m *memStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.passwordResets[token]
	if !ok || entry.used {
		return "", sql.ErrNoRows
	}
	return entry.userID, nil
}

func (m *memStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.passwordResets[token]
	if !ok {
		return sql.ErrNoRows
	}
	entry.used = true
	m.passwordResets[token] = entry
	return nil
}

// sessions

func (m *memStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshByHash[tokenHash] = refreshEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.refreshByHash[tokenHash]
	if !ok || entry.revoked || time.Now().After(entry.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	user, ok := m.users[entry.userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.refreshByHash[tokenHash]
	if !ok {
		return nil
	}
	entry.revoked = true
	m.refreshByHash[tokenHash] = entry
	return nil
}

func (m *memStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokedJTIs[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokedJTIs[jti], nil
}

// query bundles

func (m *memStore) InsertQueryBundle(ctx context.Context, bundle store.QueryBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[bundle.ID] = cloneBundle(bundle)
	return nil
}

func (m *memStore) UpdateQueryBundle(ctx context.Context, bundle store.QueryBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bundles[bundle.ID]; !ok {
		return sql.ErrNoRows
	}
	m.bundles[bundle.ID] = cloneBundle(bundle)
	return nil
}

func (m *memStore) ListQueryBundles(ctx context.Context) ([]store.QueryBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.QueryBundle, 0, len(m.bundles))
	for _, bundle := range m.bundles {
		out = append(out, cloneBundle(bundle))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *memStore) GetBundleForQueryID(ctx context.Context, queryID string) (store.QueryBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bundle, ok := m.bundles[queryID]; ok {
		return cloneBundle(bundle), nil
	}
	for _, bundle := range m.bundles {
		for _, sq := range bundle.SubQueries {
			if sq.ID == queryID {
				return cloneBundle(bundle), nil
			}
		}
	}
	return store.QueryBundle{}, sql.ErrNoRows
}

// chat, actions, responses

func (m *memStore) InsertChatMessage(ctx context.Context, msg store.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memStore) ListChatMessages(ctx context.Context, queryID string) ([]store.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ChatMessage, 0)
	for _, msg := range m.messages {
		if msg.QueryID == queryID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) InsertActionRecord(ctx context.Context, record store.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, record)
	return nil
}

func (m *memStore) ListActionRecords(ctx context.Context, queryID string) ([]store.ActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ActionRecord, 0)
	for _, record := range m.actions {
		if record.QueryID == queryID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memStore) InsertResponse(ctx context.Context, response store.ResponseRecord, mirror store.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertResponse {
		return sql.ErrTxDone
	}
	m.responses = append(m.responses, response)
	m.messages = append(m.messages, mirror)
	return nil
}

func (m *memStore) ListResponses(ctx context.Context, queryID string) ([]store.ResponseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ResponseRecord, 0)
	for _, response := range m.responses {
		if queryID == "" || response.QueryID == queryID {
			out = append(out, response)
		}
	}
	return out, nil
}

func (m *memStore) MarkResponsesRead(ctx context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	updated := 0
	for i := range m.responses {
		if wanted[m.responses[i].ID] && !m.responses[i].IsRead {
			m.responses[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

// imported applications

func (m *memStore) InsertImportedApplications(ctx context.Context, apps []store.ImportedApplication) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, app := range apps {
		if _, ok := m.applications[app.AppNo]; !ok {
			created++
		}
		m.applications[app.AppNo] = app
	}
	return created, nil
}

func (m *memStore) ListImportedApplications(ctx context.Context, appNo string) ([]store.ImportedApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ImportedApplication, 0)
	for _, app := range m.applications {
		if appNo == "" || strings.Contains(strings.ToLower(app.AppNo), strings.ToLower(appNo)) {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppNo < out[j].AppNo })
	return out, nil
}

func (m *memStore) FindApplicationByAppNo(ctx context.Context, appNo string) (store.ImportedApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[appNo]
	if !ok {
		return store.ImportedApplication{}, sql.ErrNoRows
	}
	return app, nil
}

func cloneBundle(bundle store.QueryBundle) store.QueryBundle {
	clone := bundle
	clone.SendTo = append([]string(nil), bundle.SendTo...)
	clone.SubQueries = append([]store.SubQuery(nil), bundle.SubQueries...)
	return clone
}
