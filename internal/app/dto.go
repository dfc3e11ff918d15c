package app

import (
	"time"

	"loanops/api/internal/store"
)

// Wire shapes for the query routes. Timestamps go out as RFC3339 UTC;
// nullable resolution fields are omitted while empty.

type subQueryDTO struct {
	ID               string  `json:"id"`
	Text             string  `json:"text"`
	Status           string  `json:"status"`
	AssignedTo       string  `json:"assignedTo,omitempty"`
	Remarks          string  `json:"remarks,omitempty"`
	ResolvedBy       string  `json:"resolvedBy,omitempty"`
	ResolvedAt       *string `json:"resolvedAt,omitempty"`
	ResolutionReason string  `json:"resolutionReason,omitempty"`
	RevertedBy       string  `json:"revertedBy,omitempty"`
	RevertedAt       *string `json:"revertedAt,omitempty"`
	RevertReason     string  `json:"revertReason,omitempty"`
}

type bundleDTO struct {
	ID               string        `json:"id"`
	AppNo            string        `json:"appNo"`
	CustomerName     string        `json:"customerName"`
	Branch           string        `json:"branch"`
	BranchCode       string        `json:"branchCode,omitempty"`
	Queries          []subQueryDTO `json:"queries"`
	SendTo           []string      `json:"sendTo"`
	MarkedForTeam    string        `json:"markedForTeam"`
	Status           string        `json:"status"`
	IsResolved       bool          `json:"isResolved"`
	ResolvedBy       string        `json:"resolvedBy,omitempty"`
	ResolvedAt       *string       `json:"resolvedAt,omitempty"`
	ResolutionReason string        `json:"resolutionReason,omitempty"`
	RevertedBy       string        `json:"revertedBy,omitempty"`
	RevertedAt       *string       `json:"revertedAt,omitempty"`
	RevertReason     string        `json:"revertReason,omitempty"`
	RaisedBy         string        `json:"raisedBy,omitempty"`
	RaisedByRole     string        `json:"raisedByRole,omitempty"`
	SubmittedAt      string        `json:"submittedAt"`
	UpdatedAt        string        `json:"updatedAt"`
}

type chatMessageDTO struct {
	ID         string `json:"id"`
	QueryID    string `json:"queryId"`
	Message    string `json:"message"`
	Sender     string `json:"sender"`
	SenderRole string `json:"senderRole,omitempty"`
	Team       string `json:"team,omitempty"`
	IsSystem   bool   `json:"isSystemMessage"`
	Action     string `json:"action,omitempty"`
	Timestamp  string `json:"timestamp"`
}

type actionRecordDTO struct {
	ID        string `json:"id"`
	QueryID   string `json:"queryId"`
	Action    string `json:"action"`
	Assignee  string `json:"assignedTo,omitempty"`
	Remarks   string `json:"remarks,omitempty"`
	ActionBy  string `json:"actionBy"`
	Team      string `json:"team,omitempty"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type responseDTO struct {
	ID          string `json:"id"`
	QueryID     string `json:"queryId"`
	Message     string `json:"message"`
	Team        string `json:"team,omitempty"`
	RespondedBy string `json:"respondedBy"`
	IsRead      bool   `json:"isRead"`
	Timestamp   string `json:"timestamp"`
}

type applicationDTO struct {
	ID             string  `json:"id"`
	AppNo          string  `json:"appNo"`
	CustomerName   string  `json:"customerName"`
	BranchName     string  `json:"branchName"`
	BranchCode     string  `json:"branchCode,omitempty"`
	LoanNo         string  `json:"loanNo,omitempty"`
	SanctionAmount float64 `json:"sanctionAmount"`
	SanctionDate   *string `json:"sanctionDate,omitempty"`
	Email          string  `json:"email,omitempty"`
	LoginExecutive string  `json:"loginExecutive,omitempty"`
	AssetType      string  `json:"assetType,omitempty"`
	Status         string  `json:"status"`
	Remarks        string  `json:"remarks,omitempty"`
	ImportedBy     string  `json:"importedBy,omitempty"`
	ImportedAt     string  `json:"importedAt"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}

func toBundleDTO(bundle store.QueryBundle) bundleDTO {
	queries := make([]subQueryDTO, 0, len(bundle.SubQueries))
	for _, sq := range bundle.SubQueries {
		queries = append(queries, subQueryDTO{
			ID:               sq.ID,
			Text:             sq.Text,
			Status:           sq.Status,
			AssignedTo:       sq.AssignedTo,
			Remarks:          sq.Remarks,
			ResolvedBy:       sq.ResolvedBy,
			ResolvedAt:       formatTimePtr(sq.ResolvedAt),
			ResolutionReason: sq.ResolutionReason,
			RevertedBy:       sq.RevertedBy,
			RevertedAt:       formatTimePtr(sq.RevertedAt),
			RevertReason:     sq.RevertReason,
		})
	}
	sendTo := bundle.SendTo
	if sendTo == nil {
		sendTo = []string{}
	}
	return bundleDTO{
		ID:               bundle.ID,
		AppNo:            bundle.AppNo,
		CustomerName:     bundle.CustomerName,
		Branch:           bundle.Branch,
		BranchCode:       bundle.BranchCode,
		Queries:          queries,
		SendTo:           sendTo,
		MarkedForTeam:    bundle.MarkedForTeam,
		Status:           bundle.Status,
		IsResolved:       bundle.IsResolved,
		ResolvedBy:       bundle.ResolvedBy,
		ResolvedAt:       formatTimePtr(bundle.ResolvedAt),
		ResolutionReason: bundle.ResolutionReason,
		RevertedBy:       bundle.RevertedBy,
		RevertedAt:       formatTimePtr(bundle.RevertedAt),
		RevertReason:     bundle.RevertReason,
		RaisedBy:         bundle.RaisedBy,
		RaisedByRole:     bundle.RaisedByRole,
		SubmittedAt:      formatTime(bundle.SubmittedAt),
		UpdatedAt:        formatTime(bundle.UpdatedAt),
	}
}

func toBundleDTOs(bundles []store.QueryBundle) []bundleDTO {
	out := make([]bundleDTO, 0, len(bundles))
	for _, bundle := range bundles {
		out = append(out, toBundleDTO(bundle))
	}
	return out
}

func toChatMessageDTO(msg store.ChatMessage) chatMessageDTO {
	return chatMessageDTO{
		ID:         msg.ID,
		QueryID:    msg.QueryID,
		Message:    msg.Message,
		Sender:     msg.Sender,
		SenderRole: msg.SenderRole,
		Team:       msg.Team,
		IsSystem:   msg.IsSystem,
		Action:     msg.Action,
		Timestamp:  formatTime(msg.CreatedAt),
	}
}

func toChatMessageDTOs(msgs []store.ChatMessage) []chatMessageDTO {
	out := make([]chatMessageDTO, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toChatMessageDTO(msg))
	}
	return out
}

func toActionRecordDTO(record store.ActionRecord) actionRecordDTO {
	return actionRecordDTO{
		ID:        record.ID,
		QueryID:   record.QueryID,
		Action:    record.Action,
		Assignee:  record.Assignee,
		Remarks:   record.Remarks,
		ActionBy:  record.ActionBy,
		Team:      record.Team,
		Status:    record.Status,
		Timestamp: formatTime(record.CreatedAt),
	}
}

func toActionRecordDTOs(records []store.ActionRecord) []actionRecordDTO {
	out := make([]actionRecordDTO, 0, len(records))
	for _, record := range records {
		out = append(out, toActionRecordDTO(record))
	}
	return out
}

func toResponseDTO(response store.ResponseRecord) responseDTO {
	return responseDTO{
		ID:          response.ID,
		QueryID:     response.QueryID,
		Message:     response.Message,
		Team:        response.Team,
		RespondedBy: response.RespondedBy,
		IsRead:      response.IsRead,
		Timestamp:   formatTime(response.CreatedAt),
	}
}

func toResponseDTOs(responses []store.ResponseRecord) []responseDTO {
	out := make([]responseDTO, 0, len(responses))
	for _, response := range responses {
		out = append(out, toResponseDTO(response))
	}
	return out
}

func toApplicationDTO(app store.ImportedApplication) applicationDTO {
	return applicationDTO{
		ID:             app.ID,
		AppNo:          app.AppNo,
		CustomerName:   app.CustomerName,
		BranchName:     app.BranchName,
		BranchCode:     app.BranchCode,
		LoanNo:         app.LoanNo,
		SanctionAmount: app.SanctionAmount,
		SanctionDate:   formatTimePtr(app.SanctionDate),
		Email:          app.Email,
		LoginExecutive: app.LoginExecutive,
		AssetType:      app.AssetType,
		Status:         app.Status,
		Remarks:        app.Remarks,
		ImportedBy:     app.ImportedBy,
		ImportedAt:     formatTime(app.ImportedAt),
	}
}

func toApplicationDTOs(apps []store.ImportedApplication) []applicationDTO {
	out := make([]applicationDTO, 0, len(apps))
	for _, app := range apps {
		out = append(out, toApplicationDTO(app))
	}
	return out
}
