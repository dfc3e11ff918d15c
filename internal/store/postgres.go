package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE email = LOWER($1) AND deactivated_at IS NULL`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE id = $1 AND deactivated_at IS NULL`, userID))
}

const userColumns = `
	SELECT id, display_name, email, password_hash, role, is_email_verified,
	       COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
	FROM users`

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsEmailVerified, &user.VerificationToken, &user.VerificationExpiresAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// Refresh sessions and token revocation

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND u.deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// Query bundles

const bundleColumns = `
	id, app_no, customer_name, branch, branch_code, send_to, marked_for_team,
	status, is_resolved, COALESCE(resolved_by, ''), resolved_at, COALESCE(resolution_reason, ''),
	COALESCE(reverted_by, ''), reverted_at, COALESCE(revert_reason, ''),
	raised_by, raised_by_role, submitted_at, updated_at`

func (s *PostgresStore) InsertQueryBundle(ctx context.Context, bundle QueryBundle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert bundle: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO query_bundles (id, app_no, customer_name, branch, branch_code, send_to, marked_for_team,
			status, is_resolved, raised_by, raised_by_role, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, bundle.ID, bundle.AppNo, bundle.CustomerName, bundle.Branch, bundle.BranchCode,
		joinTeams(bundle.SendTo), bundle.MarkedForTeam, bundle.Status, bundle.IsResolved,
		bundle.RaisedBy, bundle.RaisedByRole, bundle.SubmittedAt, bundle.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}

	for _, sq := range bundle.SubQueries {
		if err := upsertSubQuery(ctx, tx, sq); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert bundle: %w", err)
	}
	return nil
}

// UpdateQueryBundle persists bundle-level status fields and every sub-query
// row in a single transaction so a status change and its aggregate recompute
// land together.
func (s *PostgresStore) UpdateQueryBundle(ctx context.Context, bundle QueryBundle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update bundle: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE query_bundles
		SET status=$2, is_resolved=$3, resolved_by=$4, resolved_at=$5, resolution_reason=$6,
			reverted_by=$7, reverted_at=$8, revert_reason=$9, updated_at=$10
		WHERE id=$1
	`, bundle.ID, bundle.Status, bundle.IsResolved, nullIfEmpty(bundle.ResolvedBy), bundle.ResolvedAt,
		nullIfEmpty(bundle.ResolutionReason), nullIfEmpty(bundle.RevertedBy), bundle.RevertedAt,
		nullIfEmpty(bundle.RevertReason), bundle.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update bundle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bundle rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	for _, sq := range bundle.SubQueries {
		if err := upsertSubQuery(ctx, tx, sq); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update bundle: %w", err)
	}
	return nil
}

func upsertSubQuery(ctx context.Context, tx *sql.Tx, sq SubQuery) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sub_queries (id, bundle_id, position, text, status, assigned_to, remarks,
			resolved_by, resolved_at, resolution_reason, reverted_by, reverted_at, revert_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status, assigned_to=EXCLUDED.assigned_to, remarks=EXCLUDED.remarks,
			resolved_by=EXCLUDED.resolved_by, resolved_at=EXCLUDED.resolved_at,
			resolution_reason=EXCLUDED.resolution_reason, reverted_by=EXCLUDED.reverted_by,
			reverted_at=EXCLUDED.reverted_at, revert_reason=EXCLUDED.revert_reason,
			updated_at=EXCLUDED.updated_at
	`, sq.ID, sq.BundleID, sq.Position, sq.Text, sq.Status, nullIfEmpty(sq.AssignedTo), nullIfEmpty(sq.Remarks),
		nullIfEmpty(sq.ResolvedBy), sq.ResolvedAt, nullIfEmpty(sq.ResolutionReason),
		nullIfEmpty(sq.RevertedBy), sq.RevertedAt, nullIfEmpty(sq.RevertReason), sq.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert sub-query %s: %w", sq.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListQueryBundles(ctx context.Context) ([]QueryBundle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bundleColumns+` FROM query_bundles ORDER BY updated_at DESC, submitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	bundles := make([]QueryBundle, 0)
	index := map[string]int{}
	for rows.Next() {
		bundle, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		index[bundle.ID] = len(bundles)
		bundles = append(bundles, bundle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bundles: %w", err)
	}

	subRows, err := s.db.QueryContext(ctx, `SELECT `+subQueryColumns+` FROM sub_queries ORDER BY bundle_id, position`)
	if err != nil {
		return nil, fmt.Errorf("list sub-queries: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		sq, err := scanSubQuery(subRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[sq.BundleID]; ok {
			bundles[i].SubQueries = append(bundles[i].SubQueries, sq)
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sub-queries: %w", err)
	}
	return bundles, nil
}

func (s *PostgresStore) GetQueryBundle(ctx context.Context, bundleID string) (QueryBundle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bundleColumns+` FROM query_bundles WHERE id=$1`, bundleID)
	bundle, err := scanBundle(row)
	if err != nil {
		return QueryBundle{}, err
	}
	if err := s.loadSubQueries(ctx, &bundle); err != nil {
		return QueryBundle{}, err
	}
	return bundle, nil
}

// GetBundleForQueryID resolves an id that may name either a bundle or one of
// its sub-queries, returning the whole bundle either way.
func (s *PostgresStore) GetBundleForQueryID(ctx context.Context, queryID string) (QueryBundle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bundleColumns+` FROM query_bundles
		WHERE id=$1 OR id IN (SELECT bundle_id FROM sub_queries WHERE id=$1)
	`, queryID)
	bundle, err := scanBundle(row)
	if err != nil {
		return QueryBundle{}, err
	}
	if err := s.loadSubQueries(ctx, &bundle); err != nil {
		return QueryBundle{}, err
	}
	return bundle, nil
}

const subQueryColumns = `
	id, bundle_id, position, text, status, COALESCE(assigned_to, ''), COALESCE(remarks, ''),
	COALESCE(resolved_by, ''), resolved_at, COALESCE(resolution_reason, ''),
	COALESCE(reverted_by, ''), reverted_at, COALESCE(revert_reason, ''), updated_at`

func (s *PostgresStore) loadSubQueries(ctx context.Context, bundle *QueryBundle) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subQueryColumns+` FROM sub_queries WHERE bundle_id=$1 ORDER BY position`, bundle.ID)
	if err != nil {
		return fmt.Errorf("load sub-queries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		sq, err := scanSubQuery(rows)
		if err != nil {
			return err
		}
		bundle.SubQueries = append(bundle.SubQueries, sq)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sub-queries: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBundle(row rowScanner) (QueryBundle, error) {
	var bundle QueryBundle
	var sendTo string
	err := row.Scan(&bundle.ID, &bundle.AppNo, &bundle.CustomerName, &bundle.Branch, &bundle.BranchCode,
		&sendTo, &bundle.MarkedForTeam, &bundle.Status, &bundle.IsResolved,
		&bundle.ResolvedBy, &bundle.ResolvedAt, &bundle.ResolutionReason,
		&bundle.RevertedBy, &bundle.RevertedAt, &bundle.RevertReason,
		&bundle.RaisedBy, &bundle.RaisedByRole, &bundle.SubmittedAt, &bundle.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QueryBundle{}, err
		}
		return QueryBundle{}, fmt.Errorf("scan bundle: %w", err)
	}
	bundle.SendTo = splitTeams(sendTo)
	return bundle, nil
}

func scanSubQuery(row rowScanner) (SubQuery, error) {
	var sq SubQuery
	err := row.Scan(&sq.ID, &sq.BundleID, &sq.Position, &sq.Text, &sq.Status, &sq.AssignedTo, &sq.Remarks,
		&sq.ResolvedBy, &sq.ResolvedAt, &sq.ResolutionReason,
		&sq.RevertedBy, &sq.RevertedAt, &sq.RevertReason, &sq.UpdatedAt)
	if err != nil {
		return SubQuery{}, fmt.Errorf("scan sub-query: %w", err)
	}
	return sq, nil
}

// Chat messages

func (s *PostgresStore) InsertChatMessage(ctx context.Context, msg ChatMessage) error {
	return insertChatMessage(ctx, s.db, msg)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertChatMessage(ctx context.Context, db execer, msg ChatMessage) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, query_id, message, sender, sender_role, team, is_system, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.QueryID, msg.Message, msg.Sender, msg.SenderRole, msg.Team, msg.IsSystem, nullIfEmpty(msg.Action), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChatMessages(ctx context.Context, queryID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_id, message, sender, sender_role, team, is_system, COALESCE(action, ''), created_at
		FROM chat_messages
		WHERE query_id=$1
		ORDER BY created_at ASC
	`, queryID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0)
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.QueryID, &msg.Message, &msg.Sender, &msg.SenderRole,
			&msg.Team, &msg.IsSystem, &msg.Action, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return messages, nil
}

// Action records

func (s *PostgresStore) InsertActionRecord(ctx context.Context, record ActionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_records (id, query_id, action, assignee, remarks, action_by, team, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, record.QueryID, record.Action, nullIfEmpty(record.Assignee), nullIfEmpty(record.Remarks),
		record.ActionBy, record.Team, record.Status, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert action record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActionRecords(ctx context.Context, queryID string) ([]ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_id, action, COALESCE(assignee, ''), COALESCE(remarks, ''), action_by, team, status, created_at
		FROM action_records
		WHERE query_id=$1
		ORDER BY created_at ASC
	`, queryID)
	if err != nil {
		return nil, fmt.Errorf("list action records: %w", err)
	}
	defer rows.Close()

	records := make([]ActionRecord, 0)
	for rows.Next() {
		var record ActionRecord
		if err := rows.Scan(&record.ID, &record.QueryID, &record.Action, &record.Assignee, &record.Remarks,
			&record.ActionBy, &record.Team, &record.Status, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action records: %w", err)
	}
	return records, nil
}

// Responses

// InsertResponse stores a team reply and its chat mirror in one transaction.
// The original system wrote these through two independent stores plus a
// loopback HTTP call; one commit replaces all of that.
func (s *PostgresStore) InsertResponse(ctx context.Context, response ResponseRecord, msg ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert response: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO responses (id, query_id, message, team, responded_by, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, response.ID, response.QueryID, response.Message, response.Team, response.RespondedBy, response.IsRead, response.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}

	if err := insertChatMessage(ctx, tx, msg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert response: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, queryID string) ([]ResponseRecord, error) {
	query := `
		SELECT id, query_id, message, team, responded_by, is_read, created_at
		FROM responses`
	args := []any{}
	if queryID != "" {
		query += ` WHERE query_id=$1`
		args = append(args, queryID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	responses := make([]ResponseRecord, 0)
	for rows.Next() {
		var response ResponseRecord
		if err := rows.Scan(&response.ID, &response.QueryID, &response.Message, &response.Team,
			&response.RespondedBy, &response.IsRead, &response.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, response)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return responses, nil
}

func (s *PostgresStore) MarkResponsesRead(ctx context.Context, responseIDs []string) (int, error) {
	if len(responseIDs) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(responseIDs))
	args := make([]any, len(responseIDs))
	for i, id := range responseIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE responses SET is_read=TRUE WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("mark responses read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark responses read rows: %w", err)
	}
	return int(affected), nil
}

// Imported applications

func (s *PostgresStore) InsertImportedApplications(ctx context.Context, apps []ImportedApplication) (int, error) {
	if len(apps) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert applications: %w", err)
	}
	defer tx.Rollback()

	created := 0
	for _, app := range apps {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO imported_applications (id, app_no, customer_name, branch_name, branch_code, loan_no,
				sanction_amount, sanction_date, email, login_executive, asset_type, status, remarks, imported_by, imported_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (app_no) DO UPDATE SET
				customer_name=EXCLUDED.customer_name, branch_name=EXCLUDED.branch_name,
				branch_code=EXCLUDED.branch_code, loan_no=EXCLUDED.loan_no,
				sanction_amount=EXCLUDED.sanction_amount, sanction_date=EXCLUDED.sanction_date,
				email=EXCLUDED.email, login_executive=EXCLUDED.login_executive,
				asset_type=EXCLUDED.asset_type, status=EXCLUDED.status, remarks=EXCLUDED.remarks,
				imported_by=EXCLUDED.imported_by, imported_at=EXCLUDED.imported_at
		`, app.ID, app.AppNo, app.CustomerName, app.BranchName, app.BranchCode, app.LoanNo,
			app.SanctionAmount, app.SanctionDate, app.Email, app.LoginExecutive, app.AssetType,
			app.Status, app.Remarks, app.ImportedBy, app.ImportedAt)
		if err != nil {
			return 0, fmt.Errorf("insert application %s: %w", app.AppNo, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected > 0 {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert applications: %w", err)
	}
	return created, nil
}

const applicationColumns = `
	SELECT id, app_no, customer_name, branch_name, COALESCE(branch_code, ''), COALESCE(loan_no, ''),
	       sanction_amount, sanction_date, COALESCE(email, ''), COALESCE(login_executive, ''),
	       COALESCE(asset_type, ''), status, COALESCE(remarks, ''), imported_by, imported_at
	FROM imported_applications`

func (s *PostgresStore) ListImportedApplications(ctx context.Context, appNo string) ([]ImportedApplication, error) {
	query := applicationColumns
	args := []any{}
	if appNo != "" {
		query += ` WHERE app_no ILIKE '%' || $1 || '%'`
		args = append(args, appNo)
	}
	query += ` ORDER BY imported_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]ImportedApplication, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

func (s *PostgresStore) FindApplicationByAppNo(ctx context.Context, appNo string) (ImportedApplication, error) {
	row := s.db.QueryRowContext(ctx, applicationColumns+` WHERE app_no=$1`, appNo)
	return scanApplication(row)
}

func scanApplication(row rowScanner) (ImportedApplication, error) {
	var app ImportedApplication
	err := row.Scan(&app.ID, &app.AppNo, &app.CustomerName, &app.BranchName, &app.BranchCode, &app.LoanNo,
		&app.SanctionAmount, &app.SanctionDate, &app.Email, &app.LoginExecutive, &app.AssetType,
		&app.Status, &app.Remarks, &app.ImportedBy, &app.ImportedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ImportedApplication{}, err
		}
		return ImportedApplication{}, fmt.Errorf("scan application: %w", err)
	}
	return app, nil
}

func joinTeams(teams []string) string {
	return strings.Join(teams, ",")
}

func splitTeams(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	teams := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			teams = append(teams, trimmed)
		}
	}
	return teams
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
