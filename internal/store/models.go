package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// QueryBundle is the set of queries raised against one loan application in a
// single submission. Its status is derived from the sub-queries: resolved
// only once every sub-query has reached a resolved-class status.
type QueryBundle struct {
	ID               string
	AppNo            string
	CustomerName     string
	Branch           string
	BranchCode       string
	SendTo           []string
	MarkedForTeam    string
	Status           string
	IsResolved       bool
	ResolvedBy       string
	ResolvedAt       *time.Time
	ResolutionReason string
	RevertedBy       string
	RevertedAt       *time.Time
	RevertReason     string
	RaisedBy         string
	RaisedByRole     string
	SubQueries       []SubQuery
	SubmittedAt      time.Time
	UpdatedAt        time.Time
}

// SubQuery is one question within a bundle. Its id is positional
// (<bundleID>-q<n>) and its status moves independently of its siblings.
type SubQuery struct {
	ID               string
	BundleID         string
	Position         int
	Text             string
	Status           string
	AssignedTo       string
	Remarks          string
	ResolvedBy       string
	ResolvedAt       *time.Time
	ResolutionReason string
	RevertedBy       string
	RevertedAt       *time.Time
	RevertReason     string
	UpdatedAt        time.Time
}

// ChatMessage is one entry in a query's conversation. System messages are
// generated narrations of take-action and revert events.
type ChatMessage struct {
	ID         string
	QueryID    string
	Message    string
	Sender     string
	SenderRole string
	Team       string
	IsSystem   bool
	Action     string
	CreatedAt  time.Time
}

// ActionRecord is an append-only audit entry for a take-action event.
type ActionRecord struct {
	ID        string
	QueryID   string
	Action    string
	Assignee  string
	Remarks   string
	ActionBy  string
	Team      string
	Status    string
	CreatedAt time.Time
}

// ResponseRecord is a team reply to a query, tracked separately from chat
// so the dashboard can surface unread replies.
type ResponseRecord struct {
	ID          string
	QueryID     string
	Message     string
	Team        string
	RespondedBy string
	IsRead      bool
	CreatedAt   time.Time
}

// ImportedApplication is a sanctioned loan application normalized from one
// bulk-upload CSV row.
type ImportedApplication struct {
	ID             string
	AppNo          string
	CustomerName   string
	BranchName     string
	BranchCode     string
	LoanNo         string
	SanctionAmount float64
	SanctionDate   *time.Time
	Email          string
	LoginExecutive string
	AssetType      string
	Status         string
	Remarks        string
	ImportedBy     string
	ImportedAt     time.Time
}
