// Package search provides full-text search over query bundles, backed by
// Meilisearch with a postgres fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID            string `json:"id"`
	AppNo         string `json:"appNo"`
	CustomerName  string `json:"customerName"`
	Branch        string `json:"branch"`
	MarkedForTeam string `json:"markedForTeam"`
	Status        string `json:"status"`
	Snippet       string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Team   string // empty = all teams
	Status string // empty = all statuses
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// QueryRecord is the data we index for one query bundle.
type QueryRecord struct {
	ID            string `json:"id"`
	AppNo         string `json:"appNo"`
	CustomerName  string `json:"customerName"`
	Branch        string `json:"branch"`
	MarkedForTeam string `json:"markedForTeam"`
	Status        string `json:"status"`
	QueryText     string `json:"queryText"`
}
