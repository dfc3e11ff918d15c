package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"loanops/api/internal/store"
)

type fakeDataStore struct {
	getBundleFn    func(ctx context.Context, queryID string) (store.QueryBundle, error)
	listActionsFn  func(ctx context.Context, queryID string) ([]store.ActionRecord, error)
	listMessagesFn func(ctx context.Context, queryID string) ([]store.ChatMessage, error)
}

func (f *fakeDataStore) GetBundleForQueryID(ctx context.Context, queryID string) (store.QueryBundle, error) {
	return f.getBundleFn(ctx, queryID)
}

func (f *fakeDataStore) ListActionRecords(ctx context.Context, queryID string) ([]store.ActionRecord, error) {
	if f.listActionsFn == nil {
		return nil, nil
	}
	return f.listActionsFn(ctx, queryID)
}

func (f *fakeDataStore) ListChatMessages(ctx context.Context, queryID string) ([]store.ChatMessage, error) {
	if f.listMessagesFn == nil {
		return nil, nil
	}
	return f.listMessagesFn(ctx, queryID)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"query-report-APP 1.2", "query-report-APP-12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderReportHTML(t *testing.T) {
	data := TemplateData{
		AppNo:         "APP-1001",
		CustomerName:  "Asha Verma",
		Branch:        "Pune",
		Status:        "pending",
		MarkedForTeam: "both",
		RaisedBy:      "Ops User",
		SubmittedAt:   time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC),
		SubQueries: []TemplateSubQuery{
			{Position: 1, Text: "KYC document <missing>", Status: "pending"},
			{Position: 2, Text: "Income proof pending", Status: "approved", Remarks: "verified"},
		},
		Actions: []TemplateAction{
			{Action: "approve", ActionBy: "Credit User", Team: "credit", At: time.Now()},
		},
		Messages: []TemplateMessage{
			{Sender: "System", Message: "Query approved by Credit User", IsSystem: true, At: time.Now()},
		},
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("RenderReportHTML() error = %v", err)
	}

	for _, want := range []string{"APP-1001", "Asha Verma", "Pune", "Action Log", "Chat Transcript", "Income proof pending"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	// User-supplied text must be escaped, not rendered as markup.
	if !strings.Contains(html, "KYC document &lt;missing&gt;") {
		t.Error("expected sub-query text to be HTML-escaped")
	}
}

func TestExportLoadsBundleAndTranscript(t *testing.T) {
	var askedQueryID, askedActionID string
	fs := &fakeDataStore{
		getBundleFn: func(_ context.Context, queryID string) (store.QueryBundle, error) {
			askedQueryID = queryID
			return store.QueryBundle{
				ID: "qb_1", AppNo: "APP-1", CustomerName: "Asha", Branch: "Pune",
				Status: "pending", MarkedForTeam: "sales", RaisedBy: "ops",
				SubmittedAt: time.Now(),
				SubQueries:  []store.SubQuery{{ID: "qb_1-q1", Position: 1, Text: "x", Status: "pending"}},
			}, nil
		},
		listActionsFn: func(_ context.Context, queryID string) ([]store.ActionRecord, error) {
			askedActionID = queryID
			return nil, nil
		},
	}
	svc := NewService(fs)

	// PDF rendering needs chromium; only assert the data-plumbing up to it.
	_, err := svc.Export(context.Background(), Request{QueryID: "qb_1-q1", IncludeActions: true})
	if err != nil && askedQueryID != "qb_1-q1" {
		t.Fatalf("expected bundle lookup by qb_1-q1, got %q (err=%v)", askedQueryID, err)
	}
	if askedActionID != "qb_1" {
		t.Fatalf("expected action log for bundle id, got %q", askedActionID)
	}
}
