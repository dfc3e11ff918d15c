package app

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"loanops/api/internal/auth"
	"loanops/api/internal/authpw"
	"loanops/api/internal/config"
	"loanops/api/internal/email"
	"loanops/api/internal/export"
	"loanops/api/internal/rbac"
	"loanops/api/internal/search"
	"loanops/api/internal/session"
	"loanops/api/internal/store"
	"loanops/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// Query statuses. A bundle is resolved when every sub-query has left
// pending; the three action outcomes all count as resolved for the
// aggregate.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDeferred = "deferred"
	StatusOTC      = "otc"
	StatusResolved = "resolved"
)

var validStatuses = map[string]struct{}{
	StatusPending:  {},
	StatusApproved: {},
	StatusDeferred: {},
	StatusOTC:      {},
	StatusResolved: {},
}

func isResolvedStatus(status string) bool {
	switch status {
	case StatusApproved, StatusDeferred, StatusOTC, StatusResolved:
		return true
	}
	return false
}

type dataStore interface {
	InsertQueryBundle(context.Context, store.QueryBundle) error
	UpdateQueryBundle(context.Context, store.QueryBundle) error
	ListQueryBundles(context.Context) ([]store.QueryBundle, error)
	GetBundleForQueryID(context.Context, string) (store.QueryBundle, error)
	InsertChatMessage(context.Context, store.ChatMessage) error
	ListChatMessages(context.Context, string) ([]store.ChatMessage, error)
	InsertActionRecord(context.Context, store.ActionRecord) error
	ListActionRecords(context.Context, string) ([]store.ActionRecord, error)
	InsertResponse(context.Context, store.ResponseRecord, store.ChatMessage) error
	ListResponses(context.Context, string) ([]store.ResponseRecord, error)
	MarkResponsesRead(context.Context, []string) (int, error)
	InsertImportedApplications(context.Context, []store.ImportedApplication) (int, error)
	ListImportedApplications(context.Context, string) ([]store.ImportedApplication, error)
	FindApplicationByAppNo(context.Context, string) (store.ImportedApplication, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	CountUsers(context.Context) (int, error)
	Ping(ctx context.Context) error
}

// uploadArchive stores raw bulk-upload files so a disputed import can be
// replayed from the original bytes.
type uploadArchive interface {
	StoreUpload(ctx context.Context, filename, uploadedBy string, data []byte) (string, error)
	FetchUpload(ctx context.Context, key string) ([]byte, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	authpw   *authpw.Service
	email    *email.Service
	search   *search.Service
	export   *export.Service
	files    uploadArchive
	sessions *session.RedisStore
}

func New(cfg config.Config, dataStore *store.PostgresStore) *Service {
	return &Service{
		cfg:   cfg,
		store: dataStore,
	}
}

// Optional collaborators, wired at startup when configured.

func (s *Service) SetAuthPassword(svc *authpw.Service) { s.authpw = svc }
func (s *Service) SetEmail(svc *email.Service)         { s.email = svc }
func (s *Service) SetSearch(svc *search.Service)       { s.search = svc }
func (s *Service) SetExport(svc *export.Service)       { s.export = svc }
func (s *Service) SetArchive(files uploadArchive)      { s.files = files }

// SetSessionStore switches refresh-token persistence from postgres to
// redis. Access-token revocation stays in postgres either way.
func (s *Service) SetSessionStore(sessions *session.RedisStore) { s.sessions = sessions }

func (s *Service) AuthPasswordService() *authpw.Service { return s.authpw }

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the first admin account when the users table is empty
// and an admin password is configured.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.AdminPassword == "" {
		return nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	user := store.User{
		ID:              util.NewID("u_"),
		DisplayName:     s.cfg.AdminName,
		Email:           s.cfg.AdminEmail,
		PasswordHash:    string(hash),
		Role:            string(rbac.RoleAdmin),
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return err
	}
	log.Printf("bootstrap: created admin account %s", user.Email)
	return nil
}

// Session management

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	var user store.User
	if s.sessions != nil {
		userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
		if err != nil {
			return Session{}, err
		}
		if user, err = s.store.GetUserByID(ctx, userID); err != nil {
			return Session{}, err
		}
		if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
			return Session{}, err
		}
	} else {
		var err error
		if user, err = s.store.LookupRefreshSession(ctx, tokenHash); err != nil {
			return Session{}, err
		}
		if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti_")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft_") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	refreshHash := auth.HashToken(refresh)
	if s.sessions != nil {
		if err := s.sessions.SaveRefreshSession(ctx, refreshHash, user.ID, refreshExpires); err != nil {
			return Session{}, err
		}
	} else if err := s.store.SaveRefreshSession(ctx, refreshHash, user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		tokenHash := auth.HashToken(refreshToken)
		if s.sessions != nil {
			_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
		} else {
			_ = s.store.RevokeRefreshSession(ctx, tokenHash)
		}
	}
	return nil
}

// Query lifecycle

type SubmitQueriesInput struct {
	AppNo        string
	Queries      []string
	SendTo       []string
	RaisedBy     string
	RaisedByRole string
}

// SubmitQueries creates a bundle of sub-queries for one application and
// routes it to the named teams.
func (s *Service) SubmitQueries(ctx context.Context, input SubmitQueriesInput) (store.QueryBundle, error) {
	var fields []string
	if strings.TrimSpace(input.AppNo) == "" {
		fields = append(fields, "appNo")
	}
	texts := make([]string, 0, len(input.Queries))
	for _, text := range input.Queries {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			texts = append(texts, trimmed)
		}
	}
	if len(texts) == 0 {
		fields = append(fields, "queries")
	}
	teams := normalizeTeams(input.SendTo)
	if len(teams) == 0 {
		fields = append(fields, "sendTo")
	}
	if len(fields) > 0 {
		return store.QueryBundle{}, domainError(400, "VALIDATION_ERROR", "Missing or invalid fields", map[string]any{"fields": fields})
	}

	appNo := strings.TrimSpace(input.AppNo)
	now := time.Now().UTC()
	bundle := store.QueryBundle{
		ID:            util.NewID("qb_"),
		AppNo:         appNo,
		CustomerName:  "Unknown",
		Branch:        "Unknown",
		SendTo:        teams,
		MarkedForTeam: markedForTeam(teams),
		Status:        StatusPending,
		RaisedBy:      input.RaisedBy,
		RaisedByRole:  input.RaisedByRole,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}

	// Best-effort enrichment from the imported sanction data. A missing
	// application never blocks a submit.
	if app, err := s.store.FindApplicationByAppNo(ctx, appNo); err == nil {
		bundle.CustomerName = app.CustomerName
		bundle.Branch = app.BranchName
		bundle.BranchCode = app.BranchCode
	}

	for i, text := range texts {
		bundle.SubQueries = append(bundle.SubQueries, store.SubQuery{
			ID:        util.SubQueryID(bundle.ID, i+1),
			BundleID:  bundle.ID,
			Position:  i + 1,
			Text:      text,
			Status:    StatusPending,
			UpdatedAt: now,
		})
	}

	if err := s.store.InsertQueryBundle(ctx, bundle); err != nil {
		return store.QueryBundle{}, err
	}

	s.indexBundle(bundle)
	s.notifyRouted(bundle)
	return bundle, nil
}

type ListQueriesFilter struct {
	Team      string
	Status    string
	AppNo     string
	StatsOnly bool
}

// ListQueries returns bundles matching the filter, newest activity first.
// The pending/resolved status filters also prune sub-queries to the
// matching side, so a half-resolved bundle shows up in both views with
// only its relevant sub-queries.
func (s *Service) ListQueries(ctx context.Context, filter ListQueriesFilter) ([]store.QueryBundle, error) {
	bundles, err := s.store.ListQueryBundles(ctx)
	if err != nil {
		return nil, err
	}

	team := strings.ToLower(strings.TrimSpace(filter.Team))
	appNo := strings.ToLower(strings.TrimSpace(filter.AppNo))
	status := strings.ToLower(strings.TrimSpace(filter.Status))

	filtered := make([]store.QueryBundle, 0, len(bundles))
	for _, bundle := range bundles {
		if team != "" && bundle.MarkedForTeam != team && bundle.MarkedForTeam != "both" {
			continue
		}
		if appNo != "" && !strings.Contains(strings.ToLower(bundle.AppNo), appNo) {
			continue
		}
		switch status {
		case StatusPending:
			kept := pruneSubQueries(bundle.SubQueries, false)
			if len(kept) == 0 {
				continue
			}
			bundle.SubQueries = kept
		case StatusResolved:
			kept := pruneSubQueries(bundle.SubQueries, true)
			if len(kept) == 0 {
				continue
			}
			bundle.SubQueries = kept
		}
		filtered = append(filtered, bundle)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].UpdatedAt.Equal(filtered[j].UpdatedAt) {
			return filtered[i].UpdatedAt.After(filtered[j].UpdatedAt)
		}
		return filtered[i].SubmittedAt.After(filtered[j].SubmittedAt)
	})
	return filtered, nil
}

// QueryStats returns dashboard counts by status and team.
func (s *Service) QueryStats(ctx context.Context) (map[string]any, error) {
	bundles, err := s.store.ListQueryBundles(ctx)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{"total": 0, "pending": 0, "resolved": 0}
	byTeam := map[string]int{"sales": 0, "credit": 0, "both": 0}
	for _, bundle := range bundles {
		stats["total"]++
		if bundle.IsResolved {
			stats["resolved"]++
		} else {
			stats["pending"]++
		}
		byTeam[bundle.MarkedForTeam]++
	}

	return map[string]any{
		"total":    stats["total"],
		"pending":  stats["pending"],
		"resolved": stats["resolved"],
		"byTeam":   byTeam,
	}, nil
}

// StatusUpdate describes a status transition for one sub-query or a whole
// bundle. Assignee and Remarks are optional; when supplied they are copied
// onto the affected sub-queries alongside the resolution fields.
type StatusUpdate struct {
	QueryID  string
	Status   string
	Actor    string
	Reason   string
	Assignee string
	Remarks  string
}

// UpdateStatus moves one sub-query (or, given a bundle id, every sub-query)
// to the new status and recomputes the bundle aggregate. Moving back to
// pending records who reverted and clears the resolution fields.
func (s *Service) UpdateStatus(ctx context.Context, change StatusUpdate) (store.QueryBundle, error) {
	change.Status = strings.ToLower(strings.TrimSpace(change.Status))
	if _, ok := validStatuses[change.Status]; !ok {
		return store.QueryBundle{}, domainError(400, "VALIDATION_ERROR", "Invalid status", map[string]any{"fields": []string{"status"}})
	}
	if strings.TrimSpace(change.QueryID) == "" {
		return store.QueryBundle{}, domainError(400, "VALIDATION_ERROR", "queryId is required", map[string]any{"fields": []string{"queryId"}})
	}

	bundle, err := s.store.GetBundleForQueryID(ctx, change.QueryID)
	if err != nil {
		return store.QueryBundle{}, err
	}

	now := time.Now().UTC()
	if change.QueryID == bundle.ID {
		// Bundle-level updates mirror down onto every sub-query,
		// including ones already resolved. This is how bulk re-open
		// works: PATCH the bundle back to pending.
		for i := range bundle.SubQueries {
			applyStatus(&bundle.SubQueries[i], change, now)
		}
	} else {
		found := false
		for i := range bundle.SubQueries {
			if bundle.SubQueries[i].ID == change.QueryID {
				applyStatus(&bundle.SubQueries[i], change, now)
				found = true
				break
			}
		}
		if !found {
			return store.QueryBundle{}, domainError(404, "NOT_FOUND", "Query not found", nil)
		}
	}

	if change.Status == StatusPending {
		bundle.RevertedBy = change.Actor
		revertedAt := now
		bundle.RevertedAt = &revertedAt
		bundle.RevertReason = change.Reason
	}
	recomputeAggregate(&bundle, change.Actor, now)
	bundle.UpdatedAt = now

	if err := s.store.UpdateQueryBundle(ctx, bundle); err != nil {
		return store.QueryBundle{}, err
	}

	s.indexBundle(bundle)
	return bundle, nil
}

func applyStatus(sq *store.SubQuery, change StatusUpdate, now time.Time) {
	sq.Status = change.Status
	sq.UpdatedAt = now
	if change.Assignee != "" {
		sq.AssignedTo = change.Assignee
	}
	if change.Remarks != "" {
		sq.Remarks = change.Remarks
	}
	if change.Status == StatusPending {
		sq.RevertedBy = change.Actor
		revertedAt := now
		sq.RevertedAt = &revertedAt
		sq.RevertReason = change.Reason
		sq.ResolvedBy = ""
		sq.ResolvedAt = nil
		sq.ResolutionReason = ""
		return
	}
	sq.ResolvedBy = change.Actor
	resolvedAt := now
	sq.ResolvedAt = &resolvedAt
	sq.ResolutionReason = change.Reason
}

func recomputeAggregate(bundle *store.QueryBundle, actor string, now time.Time) {
	allResolved := len(bundle.SubQueries) > 0
	for _, sq := range bundle.SubQueries {
		if !isResolvedStatus(sq.Status) {
			allResolved = false
			break
		}
	}

	if allResolved {
		bundle.Status = StatusResolved
		bundle.IsResolved = true
		bundle.ResolvedBy = actor
		resolvedAt := now
		bundle.ResolvedAt = &resolvedAt
		bundle.ResolutionReason = "All queries resolved"
		return
	}

	bundle.Status = StatusPending
	bundle.IsResolved = false
	bundle.ResolvedBy = ""
	bundle.ResolvedAt = nil
	bundle.ResolutionReason = ""
}

func pruneSubQueries(subQueries []store.SubQuery, resolved bool) []store.SubQuery {
	kept := make([]store.SubQuery, 0, len(subQueries))
	for _, sq := range subQueries {
		if isResolvedStatus(sq.Status) == resolved {
			kept = append(kept, sq)
		}
	}
	return kept
}

func normalizeTeams(raw []string) []string {
	seen := map[string]bool{}
	teams := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			team := strings.ToLower(strings.TrimSpace(part))
			if team == "" || seen[team] {
				continue
			}
			seen[team] = true
			teams = append(teams, team)
		}
	}
	return teams
}

func markedForTeam(teams []string) string {
	sales, credit := false, false
	for _, team := range teams {
		switch team {
		case "sales":
			sales = true
		case "credit":
			credit = true
		}
	}
	switch {
	case sales && credit:
		return "both"
	case sales:
		return "sales"
	case credit:
		return "credit"
	default:
		return "both"
	}
}

// Collaborator plumbing

func (s *Service) indexBundle(bundle store.QueryBundle) {
	if s.search == nil {
		return
	}
	texts := make([]string, 0, len(bundle.SubQueries))
	for _, sq := range bundle.SubQueries {
		texts = append(texts, sq.Text)
	}
	s.search.IndexQuery(search.QueryRecord{
		ID:            bundle.ID,
		AppNo:         bundle.AppNo,
		CustomerName:  bundle.CustomerName,
		Branch:        bundle.Branch,
		MarkedForTeam: bundle.MarkedForTeam,
		Status:        bundle.Status,
		QueryText:     strings.Join(texts, " | "),
	})
}

// SendVerificationEmail delivers the signup verification link. No-op
// when SMTP is not configured; the HTTP layer falls back to the dev
// bypass token in that case.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/verify-email?token=" + token
	go func() {
		if err := s.email.SendVerificationEmail(to, userName, url); err != nil {
			log.Printf("email: verification to %s: %v", to, err)
		}
	}()
}

// SendPasswordResetEmail delivers the reset link for an existing account.
func (s *Service) SendPasswordResetEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/reset-password?token=" + token
	go func() {
		if err := s.email.SendPasswordResetEmail(to, userName, url); err != nil {
			log.Printf("email: password reset to %s: %v", to, err)
		}
	}()
}

func (s *Service) notifyRouted(bundle store.QueryBundle) {
	if !s.SMTPConfigured() || s.cfg.AdminEmail == "" {
		return
	}
	go func() {
		err := s.email.SendQueryRoutedEmail([]string{s.cfg.AdminEmail}, bundle.AppNo,
			bundle.CustomerName, bundle.MarkedForTeam, bundle.RaisedBy, len(bundle.SubQueries))
		if err != nil {
			log.Printf("email: query routed notification for %s: %v", bundle.AppNo, err)
		}
	}()
}

func (s *Service) Search(ctx context.Context, q, team, status string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q}
	}
	return s.search.Search(search.Query{Text: q, Team: team, Status: status, Limit: limit, Offset: offset})
}

func (s *Service) ExportQuery(ctx context.Context, queryID string, includeChat, includeActions bool) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	return s.export.Export(ctx, export.Request{
		QueryID:        queryID,
		IncludeChat:    includeChat,
		IncludeActions: includeActions,
	})
}

// ListApplications returns imported sanction records, optionally filtered
// by application number substring.
func (s *Service) ListApplications(ctx context.Context, appNo string) ([]store.ImportedApplication, error) {
	return s.store.ListImportedApplications(ctx, strings.TrimSpace(appNo))
}
