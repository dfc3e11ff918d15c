package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"loanops/api/internal/config"
	"loanops/api/internal/store"
)

func newTestService() (*Service, *memStore) {
	mem := newMemStore()
	svc := &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store: mem,
	}
	return svc, mem
}

func submitTestBundle(t *testing.T, svc *Service, queries ...string) store.QueryBundle {
	t.Helper()
	if len(queries) == 0 {
		queries = []string{"Share the latest bank statement", "Confirm the co-applicant PAN"}
	}
	bundle, err := svc.SubmitQueries(context.Background(), SubmitQueriesInput{
		AppNo:        "APP-1001",
		Queries:      queries,
		SendTo:       []string{"sales", "credit"},
		RaisedBy:     "Priya",
		RaisedByRole: "operations",
	})
	if err != nil {
		t.Fatalf("SubmitQueries() error = %v", err)
	}
	return bundle
}

func domainErrOf(t *testing.T, err error) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr
}

func TestSubmitQueriesValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SubmitQueries(context.Background(), SubmitQueriesInput{
		AppNo:   "  ",
		Queries: []string{"", "  "},
		SendTo:  nil,
	})
	domainErr := domainErrOf(t, err)
	if domainErr.Status != 400 || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error: %+v", domainErr)
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", domainErr.Details)
	}
	fields, _ := details["fields"].([]string)
	if len(fields) != 3 {
		t.Fatalf("expected 3 invalid fields, got %v", details["fields"])
	}
}

func TestSubmitQueriesAssignsPositionalIDs(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc)

	if len(bundle.SubQueries) != 2 {
		t.Fatalf("expected 2 sub-queries, got %d", len(bundle.SubQueries))
	}
	if bundle.SubQueries[0].ID != bundle.ID+"-q1" || bundle.SubQueries[1].ID != bundle.ID+"-q2" {
		t.Fatalf("unexpected sub-query ids: %s, %s", bundle.SubQueries[0].ID, bundle.SubQueries[1].ID)
	}
	if bundle.Status != StatusPending || bundle.IsResolved {
		t.Fatalf("new bundle must start pending, got %s resolved=%v", bundle.Status, bundle.IsResolved)
	}
}

func TestSubmitQueriesTeamRouting(t *testing.T) {
	svc, _ := newTestService()
	cases := []struct {
		name   string
		sendTo []string
		want   string
	}{
		{"sales only", []string{"sales"}, "sales"},
		{"credit only", []string{"credit"}, "credit"},
		{"both teams", []string{"sales", "credit"}, "both"},
		{"unknown falls back to both", []string{"legal"}, "both"},
		{"comma separated", []string{"Sales, CREDIT"}, "both"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bundle, err := svc.SubmitQueries(context.Background(), SubmitQueriesInput{
				AppNo:   "APP-2002",
				Queries: []string{"q"},
				SendTo:  tc.sendTo,
			})
			if err != nil {
				t.Fatalf("SubmitQueries() error = %v", err)
			}
			if bundle.MarkedForTeam != tc.want {
				t.Fatalf("markedForTeam = %s, want %s", bundle.MarkedForTeam, tc.want)
			}
		})
	}
}

func TestSubmitQueriesEnrichesFromImportedApplication(t *testing.T) {
	svc, mem := newTestService()
	mem.applications["APP-1001"] = store.ImportedApplication{
		AppNo:        "APP-1001",
		CustomerName: "Ramesh Kumar",
		BranchName:   "Indore",
		BranchCode:   "IND01",
	}

	bundle := submitTestBundle(t, svc)
	if bundle.CustomerName != "Ramesh Kumar" || bundle.Branch != "Indore" || bundle.BranchCode != "IND01" {
		t.Fatalf("expected enrichment from import, got %+v", bundle)
	}
}

func TestSubmitQueriesDefaultsWhenApplicationUnknown(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc)
	if bundle.CustomerName != "Unknown" || bundle.Branch != "Unknown" {
		t.Fatalf("expected Unknown defaults, got %q / %q", bundle.CustomerName, bundle.Branch)
	}
}

func TestUpdateStatusResolvesBundleOnlyWhenAllSubQueriesResolved(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc)
	ctx := context.Background()

	updated, err := svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.SubQueries[0].ID, Status: StatusApproved, Actor: "Anita", Reason: "docs verified"})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if updated.IsResolved || updated.Status != StatusPending {
		t.Fatalf("bundle with one pending sub-query must stay pending, got %+v", updated)
	}
	if updated.SubQueries[0].Status != StatusApproved || updated.SubQueries[0].ResolvedBy != "Anita" {
		t.Fatalf("sub-query not updated: %+v", updated.SubQueries[0])
	}

	updated, err = svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.SubQueries[1].ID, Status: StatusOTC, Actor: "Anita"})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if !updated.IsResolved || updated.Status != StatusResolved {
		t.Fatalf("bundle must resolve once every sub-query is resolved, got %+v", updated)
	}
	if updated.ResolutionReason != "All queries resolved" {
		t.Fatalf("unexpected resolution reason %q", updated.ResolutionReason)
	}
}

func TestUpdateStatusRevertClearsResolutionFields(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc, "single question")
	ctx := context.Background()

	if _, err := svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.SubQueries[0].ID, Status: StatusApproved, Actor: "Anita", Reason: "ok"}); err != nil {
		t.Fatalf("UpdateStatus(approve) error = %v", err)
	}
	updated, err := svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.SubQueries[0].ID, Status: StatusPending, Actor: "Vikram", Reason: "document expired"})
	if err != nil {
		t.Fatalf("UpdateStatus(revert) error = %v", err)
	}

	sq := updated.SubQueries[0]
	if sq.Status != StatusPending {
		t.Fatalf("status = %s, want pending", sq.Status)
	}
	if sq.RevertedBy != "Vikram" || sq.RevertReason != "document expired" || sq.RevertedAt == nil {
		t.Fatalf("revert fields not recorded: %+v", sq)
	}
	if sq.ResolvedBy != "" || sq.ResolvedAt != nil || sq.ResolutionReason != "" {
		t.Fatalf("resolution fields must be cleared on revert: %+v", sq)
	}
	if updated.IsResolved || updated.ResolvedBy != "" || updated.ResolvedAt != nil {
		t.Fatalf("bundle must reopen on revert: %+v", updated)
	}
}

func TestUpdateStatusBundleFanOut(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc)
	ctx := context.Background()

	if _, err := svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.SubQueries[0].ID, Status: StatusDeferred, Actor: "Anita"}); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.ID, Status: StatusApproved, Actor: "Anita", Reason: "bulk approve"})
	if err != nil {
		t.Fatalf("UpdateStatus(bundle) error = %v", err)
	}
	for _, sq := range updated.SubQueries {
		if sq.Status != StatusApproved {
			t.Fatalf("bundle-level update must overwrite every sub-query, got %s", sq.Status)
		}
	}
	if !updated.IsResolved {
		t.Fatal("bundle must be resolved after fan-out approve")
	}

	reopened, err := svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.ID, Status: StatusPending, Actor: "Vikram", Reason: "reopening all"})
	if err != nil {
		t.Fatalf("UpdateStatus(reopen) error = %v", err)
	}
	for _, sq := range reopened.SubQueries {
		if sq.Status != StatusPending {
			t.Fatalf("bundle-level reopen must reset every sub-query, got %s", sq.Status)
		}
	}
	if reopened.IsResolved || reopened.RevertedBy != "Vikram" {
		t.Fatalf("bundle reopen not recorded: %+v", reopened)
	}
}

func TestUpdateStatusUnknownQuery(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.UpdateStatus(context.Background(), StatusUpdate{QueryID: "qb_missing", Status: StatusApproved, Actor: "Anita"})
	status, code, _, _ := mapError(err)
	if status != 404 || code != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %s", status, code)
	}
}

func TestUpdateStatusRejectsInvalidStatus(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc)
	_, err := svc.UpdateStatus(context.Background(), StatusUpdate{QueryID: bundle.ID, Status: "escalated", Actor: "Anita"})
	domainErr := domainErrOf(t, err)
	if domainErr.Status != 400 || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error: %+v", domainErr)
	}
}

func TestListQueriesStatusFilterPrunesSubQueries(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc)
	ctx := context.Background()

	if _, err := svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.SubQueries[0].ID, Status: StatusApproved, Actor: "Anita"}); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	pending, err := svc.ListQueries(ctx, ListQueriesFilter{Status: "pending"})
	if err != nil {
		t.Fatalf("ListQueries(pending) error = %v", err)
	}
	if len(pending) != 1 || len(pending[0].SubQueries) != 1 || pending[0].SubQueries[0].Status != StatusPending {
		t.Fatalf("pending view must keep only pending sub-queries: %+v", pending)
	}

	resolved, err := svc.ListQueries(ctx, ListQueriesFilter{Status: "resolved"})
	if err != nil {
		t.Fatalf("ListQueries(resolved) error = %v", err)
	}
	if len(resolved) != 1 || len(resolved[0].SubQueries) != 1 || resolved[0].SubQueries[0].Status != StatusApproved {
		t.Fatalf("resolved view must keep only resolved sub-queries: %+v", resolved)
	}
}

func TestListQueriesTeamFilterIncludesBoth(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.SubmitQueries(ctx, SubmitQueriesInput{AppNo: "A1", Queries: []string{"q"}, SendTo: []string{"sales"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitQueries(ctx, SubmitQueriesInput{AppNo: "A2", Queries: []string{"q"}, SendTo: []string{"credit"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitQueries(ctx, SubmitQueriesInput{AppNo: "A3", Queries: []string{"q"}, SendTo: []string{"sales", "credit"}}); err != nil {
		t.Fatal(err)
	}

	sales, err := svc.ListQueries(ctx, ListQueriesFilter{Team: "sales"})
	if err != nil {
		t.Fatalf("ListQueries(sales) error = %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("sales view must include sales and both bundles, got %d", len(sales))
	}
}

func TestQueryStats(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	bundle := submitTestBundle(t, svc, "only question")
	if _, err := svc.SubmitQueries(ctx, SubmitQueriesInput{AppNo: "A2", Queries: []string{"q"}, SendTo: []string{"sales"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateStatus(ctx, StatusUpdate{QueryID: bundle.SubQueries[0].ID, Status: StatusApproved, Actor: "Anita"}); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.QueryStats(ctx)
	if err != nil {
		t.Fatalf("QueryStats() error = %v", err)
	}
	if stats["total"] != 2 || stats["pending"] != 1 || stats["resolved"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRecordActionAppendsAuditAndNarration(t *testing.T) {
	svc, mem := newTestService()
	bundle := submitTestBundle(t, svc, "verify income proof")
	ctx := context.Background()

	record, err := svc.RecordAction(ctx, ActionInput{
		QueryID:  bundle.SubQueries[0].ID,
		Action:   "approve",
		Assignee: "Deepak",
		Remarks:  "income verified",
		ActionBy: "Anita",
		Team:     "credit",
	})
	if err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}
	if record.Status != "completed" || record.Action != "approve" {
		t.Fatalf("unexpected action record: %+v", record)
	}

	stored, err := mem.GetBundleForQueryID(ctx, bundle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.SubQueries[0].Status != StatusApproved {
		t.Fatalf("action must propagate status, got %s", stored.SubQueries[0].Status)
	}

	messages, err := svc.ChatMessages(ctx, bundle.SubQueries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 1 || !messages[0].IsSystem {
		t.Fatalf("expected one system narration, got %+v", messages)
	}
	want := "Query approved by Anita, assigned to Deepak. Remarks: income verified"
	if messages[0].Message != want {
		t.Fatalf("narration = %q, want %q", messages[0].Message, want)
	}
}

func TestRecordActionCopiesAssigneeAndRemarks(t *testing.T) {
	svc, mem := newTestService()
	bundle := submitTestBundle(t, svc, "verify income proof")
	ctx := context.Background()

	_, err := svc.RecordAction(ctx, ActionInput{
		QueryID:  bundle.SubQueries[0].ID,
		Action:   "deferral",
		Assignee: "Deepak",
		Remarks:  "awaiting salary slips",
		ActionBy: "Anita",
		Team:     "credit",
	})
	if err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	stored, err := mem.GetBundleForQueryID(ctx, bundle.ID)
	if err != nil {
		t.Fatal(err)
	}
	sq := stored.SubQueries[0]
	if sq.AssignedTo != "Deepak" {
		t.Fatalf("AssignedTo = %q, want Deepak", sq.AssignedTo)
	}
	if sq.Remarks != "awaiting salary slips" {
		t.Fatalf("Remarks = %q, want awaiting salary slips", sq.Remarks)
	}
}

func TestUpdateStatusKeepsAssigneeWhenNotSupplied(t *testing.T) {
	svc, mem := newTestService()
	bundle := submitTestBundle(t, svc, "verify income proof")
	ctx := context.Background()

	if _, err := svc.UpdateStatus(ctx, StatusUpdate{
		QueryID:  bundle.SubQueries[0].ID,
		Status:   StatusDeferred,
		Actor:    "Anita",
		Assignee: "Deepak",
		Remarks:  "follow up next week",
	}); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, StatusUpdate{
		QueryID: bundle.SubQueries[0].ID,
		Status:  StatusApproved,
		Actor:   "Anita",
		Reason:  "received",
	}); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	stored, err := mem.GetBundleForQueryID(ctx, bundle.ID)
	if err != nil {
		t.Fatal(err)
	}
	sq := stored.SubQueries[0]
	if sq.AssignedTo != "Deepak" || sq.Remarks != "follow up next week" {
		t.Fatalf("assignee and remarks must survive an update without them, got %q / %q", sq.AssignedTo, sq.Remarks)
	}
	if sq.Status != StatusApproved {
		t.Fatalf("Status = %q, want approved", sq.Status)
	}
}

func TestRecordActionRejectsUnknownVerb(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc)
	_, err := svc.RecordAction(context.Background(), ActionInput{
		QueryID:  bundle.ID,
		Action:   "escalate",
		ActionBy: "Anita",
	})
	domainErr := domainErrOf(t, err)
	if domainErr.Status != 400 {
		t.Fatalf("unexpected error: %+v", domainErr)
	}
}

func TestRecordRevertRequiresRemarks(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc)
	_, err := svc.RecordRevert(context.Background(), ActionInput{
		QueryID:  bundle.ID,
		Remarks:  "   ",
		ActionBy: "Vikram",
	})
	domainErr := domainErrOf(t, err)
	if domainErr.Status != 400 || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error: %+v", domainErr)
	}
}

func TestRecordRevertNarratesReason(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc, "single")
	ctx := context.Background()

	if _, err := svc.RecordAction(ctx, ActionInput{QueryID: bundle.SubQueries[0].ID, Action: "otc", ActionBy: "Anita"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordRevert(ctx, ActionInput{QueryID: bundle.SubQueries[0].ID, Remarks: "customer disputes", ActionBy: "Vikram"}); err != nil {
		t.Fatalf("RecordRevert() error = %v", err)
	}

	messages, err := svc.ChatMessages(ctx, bundle.SubQueries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	last := messages[len(messages)-1]
	want := "Query reverted to pending by Vikram. Reason: customer disputes"
	if last.Message != want || !last.IsSystem {
		t.Fatalf("narration = %+v, want %q", last, want)
	}
}

func TestRecordMessageRequiresExistingQuery(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.RecordMessage(context.Background(), ActionInput{
		QueryID:  "qb_missing-q1",
		Message:  "any update?",
		ActionBy: "Anita",
	})
	status, code, _, _ := mapError(err)
	if status != 404 || code != "NOT_FOUND" {
		t.Fatalf("expected 404, got %d %s", status, code)
	}
}

func TestSubmitResponseWritesExactlyOneChatMirror(t *testing.T) {
	svc, mem := newTestService()
	bundle := submitTestBundle(t, svc, "share FI report")
	ctx := context.Background()

	response, err := svc.SubmitResponse(ctx, ResponseInput{
		QueryID:     bundle.SubQueries[0].ID,
		Message:     "FI report attached in DMS",
		Team:        "sales",
		RespondedBy: "Deepak",
	})
	if err != nil {
		t.Fatalf("SubmitResponse() error = %v", err)
	}
	if response.IsRead {
		t.Fatal("new responses must start unread")
	}

	messages, _ := svc.ChatMessages(ctx, bundle.SubQueries[0].ID)
	if len(messages) != 1 {
		t.Fatalf("expected exactly one chat mirror, got %d", len(messages))
	}
	if messages[0].Message != response.Message || messages[0].IsSystem {
		t.Fatalf("mirror mismatch: %+v", messages[0])
	}

	responses, _ := mem.ListResponses(ctx, bundle.SubQueries[0].ID)
	if len(responses) != 1 {
		t.Fatalf("expected one response record, got %d", len(responses))
	}
}

func TestSubmitResponseFailureLeavesNoChat(t *testing.T) {
	svc, mem := newTestService()
	bundle := submitTestBundle(t, svc, "share FI report")
	mem.failInsertResponse = true

	_, err := svc.SubmitResponse(context.Background(), ResponseInput{
		QueryID:     bundle.SubQueries[0].ID,
		Message:     "FI report attached",
		RespondedBy: "Deepak",
	})
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
	messages, _ := svc.ChatMessages(context.Background(), bundle.SubQueries[0].ID)
	if len(messages) != 0 {
		t.Fatalf("failed response must not leave a chat message, got %d", len(messages))
	}
}

func TestMarkResponsesRead(t *testing.T) {
	svc, _ := newTestService()
	bundle := submitTestBundle(t, svc, "one")
	ctx := context.Background()

	first, err := svc.SubmitResponse(ctx, ResponseInput{QueryID: bundle.SubQueries[0].ID, Message: "reply 1", RespondedBy: "Deepak"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.SubmitResponse(ctx, ResponseInput{QueryID: bundle.SubQueries[0].ID, Message: "reply 2", RespondedBy: "Deepak"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.MarkResponsesRead(ctx, []string{first.ID, second.ID, "resp_missing"})
	if err != nil {
		t.Fatalf("MarkResponsesRead() error = %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}

	_, err = svc.MarkResponsesRead(ctx, []string{" ", ""})
	domainErr := domainErrOf(t, err)
	if domainErr.Status != 400 {
		t.Fatalf("empty id list must be rejected, got %+v", domainErr)
	}
}

func TestBootstrapSeedsAdminOnce(t *testing.T) {
	svc, mem := newTestService()
	svc.cfg.AdminEmail = "admin@loanops.local"
	svc.cfg.AdminPassword = "super-secret-pw"
	svc.cfg.AdminName = "Administrator"
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	count, _ := mem.CountUsers(ctx)
	if count != 1 {
		t.Fatalf("expected one seeded user, got %d", count)
	}
	admin, err := mem.GetUserByEmail(ctx, "admin@loanops.local")
	if err != nil {
		t.Fatal(err)
	}
	if admin.Role != "admin" || !admin.IsEmailVerified {
		t.Fatalf("unexpected admin account: %+v", admin)
	}

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() second run error = %v", err)
	}
	if count, _ = mem.CountUsers(ctx); count != 1 {
		t.Fatalf("bootstrap must not reseed, got %d users", count)
	}
}
