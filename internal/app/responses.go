package app

import (
	"context"
	"strings"
	"time"

	"loanops/api/internal/store"
	"loanops/api/internal/util"
)

type ResponseInput struct {
	QueryID     string
	Message     string
	Team        string
	RespondedBy string
}

// SubmitResponse records a team reply. The response row and its chat
// mirror are written in one store call, so the conversation and the
// unread-reply list can never disagree.
func (s *Service) SubmitResponse(ctx context.Context, input ResponseInput) (store.ResponseRecord, error) {
	var fields []string
	if strings.TrimSpace(input.QueryID) == "" {
		fields = append(fields, "queryId")
	}
	if strings.TrimSpace(input.Message) == "" {
		fields = append(fields, "message")
	}
	if len(fields) > 0 {
		return store.ResponseRecord{}, domainError(400, "VALIDATION_ERROR", "Missing or invalid fields", map[string]any{"fields": fields})
	}

	if _, err := s.store.GetBundleForQueryID(ctx, input.QueryID); err != nil {
		return store.ResponseRecord{}, err
	}

	now := time.Now().UTC()
	response := store.ResponseRecord{
		ID:          util.NewID("resp_"),
		QueryID:     input.QueryID,
		Message:     strings.TrimSpace(input.Message),
		Team:        input.Team,
		RespondedBy: input.RespondedBy,
		CreatedAt:   now,
	}
	mirror := store.ChatMessage{
		ID:         util.NewID("msg_"),
		QueryID:    input.QueryID,
		Message:    response.Message,
		Sender:     input.RespondedBy,
		SenderRole: input.Team,
		Team:       input.Team,
		CreatedAt:  now,
	}
	if err := s.store.InsertResponse(ctx, response, mirror); err != nil {
		return store.ResponseRecord{}, err
	}
	return response, nil
}

// ListResponses returns replies, optionally scoped to one query.
func (s *Service) ListResponses(ctx context.Context, queryID string) ([]store.ResponseRecord, error) {
	return s.store.ListResponses(ctx, strings.TrimSpace(queryID))
}

// MarkResponsesRead flags the given response ids as read and reports how
// many rows changed.
func (s *Service) MarkResponsesRead(ctx context.Context, ids []string) (int, error) {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return 0, domainError(400, "VALIDATION_ERROR", "responseIds must be a non-empty array", map[string]any{"fields": []string{"responseIds"}})
	}
	return s.store.MarkResponsesRead(ctx, cleaned)
}
