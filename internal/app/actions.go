package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loanops/api/internal/store"
	"loanops/api/internal/util"
)

// Outcome statuses per action type. The action log keeps the verb the
// operator chose; the status engine gets the resulting status.
var actionStatus = map[string]string{
	"approve":  StatusApproved,
	"deferral": StatusDeferred,
	"otc":      StatusOTC,
}

type ActionInput struct {
	QueryID  string
	Type     string
	Action   string
	Assignee string
	Remarks  string
	Message  string
	ActionBy string
	Team     string
}

// RecordAction applies a take-action event: the status engine moves the
// query, an immutable ActionRecord is appended, and a system chat message
// narrates what happened.
func (s *Service) RecordAction(ctx context.Context, input ActionInput) (store.ActionRecord, error) {
	action := strings.ToLower(strings.TrimSpace(input.Action))
	status, ok := actionStatus[action]
	if !ok {
		return store.ActionRecord{}, domainError(400, "VALIDATION_ERROR", "Unknown action", map[string]any{"fields": []string{"action"}})
	}
	if strings.TrimSpace(input.QueryID) == "" {
		return store.ActionRecord{}, domainError(400, "VALIDATION_ERROR", "queryId is required", map[string]any{"fields": []string{"queryId"}})
	}

	if _, err := s.UpdateStatus(ctx, StatusUpdate{
		QueryID:  input.QueryID,
		Status:   status,
		Actor:    input.ActionBy,
		Reason:   input.Remarks,
		Assignee: input.Assignee,
		Remarks:  input.Remarks,
	}); err != nil {
		return store.ActionRecord{}, err
	}

	now := time.Now().UTC()
	record := store.ActionRecord{
		ID:        util.NewID("act_"),
		QueryID:   input.QueryID,
		Action:    action,
		Assignee:  input.Assignee,
		Remarks:   input.Remarks,
		ActionBy:  input.ActionBy,
		Team:      input.Team,
		Status:    "completed",
		CreatedAt: now,
	}
	if err := s.store.InsertActionRecord(ctx, record); err != nil {
		return store.ActionRecord{}, err
	}

	if err := s.store.InsertChatMessage(ctx, store.ChatMessage{
		ID:         util.NewID("msg_"),
		QueryID:    input.QueryID,
		Message:    narrateAction(action, input.ActionBy, input.Assignee, input.Remarks),
		Sender:     "System",
		SenderRole: "system",
		Team:       input.Team,
		IsSystem:   true,
		Action:     action,
		CreatedAt:  now,
	}); err != nil {
		return store.ActionRecord{}, err
	}

	return record, nil
}

// RecordRevert moves a query back to pending. Remarks are mandatory so the
// audit trail always carries a reason for reopening.
func (s *Service) RecordRevert(ctx context.Context, input ActionInput) (store.ActionRecord, error) {
	if strings.TrimSpace(input.Remarks) == "" {
		return store.ActionRecord{}, domainError(400, "VALIDATION_ERROR", "Remarks are required to revert", map[string]any{"fields": []string{"remarks"}})
	}
	if strings.TrimSpace(input.QueryID) == "" {
		return store.ActionRecord{}, domainError(400, "VALIDATION_ERROR", "queryId is required", map[string]any{"fields": []string{"queryId"}})
	}

	if _, err := s.UpdateStatus(ctx, StatusUpdate{
		QueryID: input.QueryID,
		Status:  StatusPending,
		Actor:   input.ActionBy,
		Reason:  input.Remarks,
		Remarks: input.Remarks,
	}); err != nil {
		return store.ActionRecord{}, err
	}

	now := time.Now().UTC()
	record := store.ActionRecord{
		ID:        util.NewID("act_"),
		QueryID:   input.QueryID,
		Action:    "revert",
		Remarks:   input.Remarks,
		ActionBy:  input.ActionBy,
		Team:      input.Team,
		Status:    "completed",
		CreatedAt: now,
	}
	if err := s.store.InsertActionRecord(ctx, record); err != nil {
		return store.ActionRecord{}, err
	}

	if err := s.store.InsertChatMessage(ctx, store.ChatMessage{
		ID:         util.NewID("msg_"),
		QueryID:    input.QueryID,
		Message:    fmt.Sprintf("Query reverted to pending by %s. Reason: %s", input.ActionBy, input.Remarks),
		Sender:     "System",
		SenderRole: "system",
		Team:       input.Team,
		IsSystem:   true,
		Action:     "revert",
		CreatedAt:  now,
	}); err != nil {
		return store.ActionRecord{}, err
	}

	return record, nil
}

// RecordMessage appends a plain chat message to a query's conversation.
func (s *Service) RecordMessage(ctx context.Context, input ActionInput) (store.ChatMessage, error) {
	if strings.TrimSpace(input.Message) == "" {
		return store.ChatMessage{}, domainError(400, "VALIDATION_ERROR", "Message is required", map[string]any{"fields": []string{"message"}})
	}
	if strings.TrimSpace(input.QueryID) == "" {
		return store.ChatMessage{}, domainError(400, "VALIDATION_ERROR", "queryId is required", map[string]any{"fields": []string{"queryId"}})
	}
	if _, err := s.store.GetBundleForQueryID(ctx, input.QueryID); err != nil {
		return store.ChatMessage{}, err
	}

	message := store.ChatMessage{
		ID:         util.NewID("msg_"),
		QueryID:    input.QueryID,
		Message:    strings.TrimSpace(input.Message),
		Sender:     input.ActionBy,
		SenderRole: input.Team,
		Team:       input.Team,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertChatMessage(ctx, message); err != nil {
		return store.ChatMessage{}, err
	}
	return message, nil
}

// ListActions returns the audit log for a query, optionally filtered by
// action type.
func (s *Service) ListActions(ctx context.Context, queryID, actionType string) ([]store.ActionRecord, error) {
	if strings.TrimSpace(queryID) == "" {
		return nil, domainError(400, "VALIDATION_ERROR", "queryId is required", map[string]any{"fields": []string{"queryId"}})
	}
	records, err := s.store.ListActionRecords(ctx, queryID)
	if err != nil {
		return nil, err
	}
	actionType = strings.ToLower(strings.TrimSpace(actionType))
	if actionType == "" {
		return records, nil
	}
	filtered := make([]store.ActionRecord, 0, len(records))
	for _, record := range records {
		if record.Action == actionType {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

func narrateAction(action, actionBy, assignee, remarks string) string {
	var verb string
	switch action {
	case "approve":
		verb = "approved"
	case "deferral":
		verb = "deferred"
	case "otc":
		verb = "marked OTC"
	}
	msg := fmt.Sprintf("Query %s by %s", verb, actionBy)
	if assignee != "" {
		msg += fmt.Sprintf(", assigned to %s", assignee)
	}
	if remarks != "" {
		msg += ". Remarks: " + remarks
	}
	return msg
}

// ChatMessages returns a query's conversation, oldest first.
func (s *Service) ChatMessages(ctx context.Context, queryID string) ([]store.ChatMessage, error) {
	if strings.TrimSpace(queryID) == "" {
		return nil, domainError(400, "VALIDATION_ERROR", "queryId is required", map[string]any{"fields": []string{"queryId"}})
	}
	return s.store.ListChatMessages(ctx, queryID)
}
