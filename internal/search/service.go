package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to postgres.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries each backend in order, Meilisearch first. An unhealthy or
// failing backend falls through to the next one.
func (s *Service) Search(q Query) Response {
	return searchBackends(s.backends(), q)
}

func (s *Service) backends() []Searcher {
	var backends []Searcher
	if s.meili != nil {
		backends = append(backends, s.meili)
	}
	if s.pg != nil {
		backends = append(backends, s.pg)
	}
	return backends
}

func searchBackends(backends []Searcher, q Query) Response {
	for _, backend := range backends {
		if !backend.Healthy() {
			continue
		}
		results, total, err := backend.Search(q)
		if err != nil {
			log.Printf("search: backend error, trying next: %v", err)
			continue
		}
		return Response{Results: nonNil(results), Total: total, Query: q.Text}
	}
	return Response{Results: []Result{}, Total: 0, Query: q.Text}
}

// IndexQuery indexes one bundle (fire-and-forget to Meilisearch).
func (s *Service) IndexQuery(record QueryRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexQuery(record); err != nil {
			log.Printf("search: index query %s: %v", record.ID, err)
		}
	}()
}

// ReindexAllFromPG reindexes every bundle from postgres into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	records, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexQueries(records); err != nil {
		log.Printf("search: reindex queries: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
