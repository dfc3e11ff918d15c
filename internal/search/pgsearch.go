package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch is the fallback searcher: ILIKE over query bundles and their
// sub-query text, good enough to keep the endpoint alive when Meilisearch
// is down.
type PgSearch struct {
	db *sql.DB
}

// NewPgSearch creates a postgres-backed searcher.
func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always reports true; the db connection is the process lifeline.
func (p *PgSearch) Healthy() bool {
	return true
}

// Search runs a substring match over appNo, customer, branch and sub-query text.
func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	pattern := "%" + strings.TrimSpace(q.Text) + "%"
	args := []any{pattern}
	where := `(qb.app_no ILIKE $1 OR qb.customer_name ILIKE $1 OR qb.branch ILIKE $1
		OR EXISTS (SELECT 1 FROM sub_queries sq WHERE sq.bundle_id = qb.id AND sq.text ILIKE $1))`
	if q.Team != "" {
		args = append(args, q.Team)
		where += fmt.Sprintf(` AND (qb.marked_for_team = $%d OR qb.marked_for_team = 'both')`, len(args))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		where += fmt.Sprintf(` AND qb.status = $%d`, len(args))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM query_bundles qb WHERE ` + where
	if err := p.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	args = append(args, limit, q.Offset)
	query := fmt.Sprintf(`
		SELECT qb.id, qb.app_no, qb.customer_name, qb.branch, qb.marked_for_team, qb.status,
			COALESCE((SELECT string_agg(sq.text, ' | ' ORDER BY sq.position) FROM sub_queries sq WHERE sq.bundle_id = qb.id), '')
		FROM query_bundles qb
		WHERE %s
		ORDER BY qb.updated_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search bundles: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.AppNo, &r.CustomerName, &r.Branch, &r.MarkedForTeam, &r.Status, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every bundle for a full reindex into Meilisearch.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]QueryRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT qb.id, qb.app_no, qb.customer_name, qb.branch, qb.marked_for_team, qb.status,
			COALESCE((SELECT string_agg(sq.text, ' | ' ORDER BY sq.position) FROM sub_queries sq WHERE sq.bundle_id = qb.id), '')
		FROM query_bundles qb
	`)
	if err != nil {
		return nil, fmt.Errorf("load bundles for reindex: %w", err)
	}
	defer rows.Close()

	records := make([]QueryRecord, 0)
	for rows.Next() {
		var record QueryRecord
		if err := rows.Scan(&record.ID, &record.AppNo, &record.CustomerName, &record.Branch,
			&record.MarkedForTeam, &record.Status, &record.QueryText); err != nil {
			return nil, fmt.Errorf("scan reindex record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reindex records: %w", err)
	}
	return records, nil
}
