package export

import (
	"context"
	"fmt"

	"loanops/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetBundleForQueryID(ctx context.Context, queryID string) (store.QueryBundle, error)
	ListActionRecords(ctx context.Context, queryID string) ([]store.ActionRecord, error)
	ListChatMessages(ctx context.Context, queryID string) ([]store.ChatMessage, error)
}

// Service provides query report export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export renders the bundle's report and prints it to PDF.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	bundle, err := s.store.GetBundleForQueryID(ctx, req.QueryID)
	if err != nil {
		return nil, fmt.Errorf("get query bundle: %w", err)
	}

	data := TemplateData{
		AppNo:         bundle.AppNo,
		CustomerName:  bundle.CustomerName,
		Branch:        bundle.Branch,
		Status:        bundle.Status,
		MarkedForTeam: bundle.MarkedForTeam,
		RaisedBy:      bundle.RaisedBy,
		SubmittedAt:   bundle.SubmittedAt,
	}
	for _, sq := range bundle.SubQueries {
		data.SubQueries = append(data.SubQueries, TemplateSubQuery{
			Position: sq.Position,
			Text:     sq.Text,
			Status:   sq.Status,
			Remarks:  sq.Remarks,
		})
	}

	if req.IncludeActions {
		actions, err := s.store.ListActionRecords(ctx, bundle.ID)
		if err != nil {
			return nil, fmt.Errorf("list actions: %w", err)
		}
		for _, record := range actions {
			data.Actions = append(data.Actions, TemplateAction{
				Action:   record.Action,
				ActionBy: record.ActionBy,
				Team:     record.Team,
				Remarks:  record.Remarks,
				At:       record.CreatedAt,
			})
		}
	}

	if req.IncludeChat {
		messages, err := s.store.ListChatMessages(ctx, req.QueryID)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, msg := range messages {
			data.Messages = append(data.Messages, TemplateMessage{
				Sender:   msg.Sender,
				Team:     msg.Team,
				Message:  msg.Message,
				IsSystem: msg.IsSystem,
				At:       msg.CreatedAt,
			})
		}
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, "query-report-"+bundle.AppNo)
}
