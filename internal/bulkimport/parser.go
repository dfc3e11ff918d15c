// Package bulkimport parses sanctioned-application CSV exports from the LOS.
package bulkimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"loanops/api/internal/store"
	"loanops/api/internal/util"
)

// ErrNoHeader is returned when the file is empty or has no header row.
var ErrNoHeader = errors.New("csv file has no header row")

// Column keys the parser understands. Header matching is case-insensitive
// and tolerant of the spacing/punctuation variants the LOS exports use.
const (
	colAppNo          = "appNo"
	colCustomerName   = "customerName"
	colBranchName     = "branchName"
	colBranchCode     = "branchCode"
	colStatus         = "status"
	colLoanNo         = "loanNo"
	colSanctionAmount = "sanctionAmount"
	colSanctionDate   = "sanctionDate"
	colEmail          = "email"
	colLoginExecutive = "loginExecutive"
	colAssetType      = "assetType"
	colRemarks        = "remarks"
)

var headerAliases = map[string]string{
	"application id":       colAppNo,
	"application no":       colAppNo,
	"app no":               colAppNo,
	"app id":               colAppNo,
	"appno":                colAppNo,
	"customer name":        colCustomerName,
	"customer":             colCustomerName,
	"applicant name":       colCustomerName,
	"branch":               colBranchName,
	"branch name":          colBranchName,
	"branch code":          colBranchCode,
	"task name":            colStatus,
	"status":               colStatus,
	"stage":                colStatus,
	"loan no":              colLoanNo,
	"loan number":          colLoanNo,
	"loan account no":      colLoanNo,
	"sanction amount":      colSanctionAmount,
	"sanctioned amount":    colSanctionAmount,
	"amount":               colSanctionAmount,
	"sanction date":        colSanctionDate,
	"sanctioned date":      colSanctionDate,
	"date":                 colSanctionDate,
	"email":                colEmail,
	"email id":             colEmail,
	"customer email":       colEmail,
	"login executive":      colLoginExecutive,
	"login executive name": colLoginExecutive,
	"asset type":           colAssetType,
	"asset":                colAssetType,
	"remarks":              colRemarks,
}

var requiredColumns = []string{colAppNo, colCustomerName, colBranchName, colStatus}

// Rows whose status contains one of these fragments are sanctioned
// applications; everything else is skipped, not failed.
var sanctionKeywords = []string{"sanction", "disburs"}

// RowIssue describes why a data row was skipped or rejected.
type RowIssue struct {
	Line   int    `json:"line"`
	AppNo  string `json:"appNo,omitempty"`
	Reason string `json:"reason"`
}

// Result is the outcome of parsing one CSV file.
type Result struct {
	Applications []store.ImportedApplication
	Skipped      []RowIssue
	Errors       []RowIssue
	TotalRows    int
}

// Parse reads a CSV export and returns the sanctioned applications it
// contains. Per-row problems are collected, not fatal; only a missing or
// unusable header aborts the whole file.
func Parse(r io.Reader, importedBy string) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Result{}, ErrNoHeader
	}
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}

	columns := map[string]int{}
	for i, raw := range header {
		name := normalizeHeader(raw)
		if key, ok := headerAliases[name]; ok {
			if _, seen := columns[key]; !seen {
				columns[key] = i
			}
		}
	}
	var missing []string
	for _, key := range requiredColumns {
		if _, ok := columns[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Result{}, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	result := Result{}
	now := time.Now().UTC()
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, RowIssue{Line: line, Reason: "unparseable row"})
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		result.TotalRows++

		field := func(key string) string {
			i, ok := columns[key]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		appNo := field(colAppNo)
		customerName := field(colCustomerName)
		branchName := field(colBranchName)
		status := field(colStatus)

		var empty []string
		if appNo == "" {
			empty = append(empty, "application id")
		}
		if customerName == "" {
			empty = append(empty, "customer name")
		}
		if branchName == "" {
			empty = append(empty, "branch")
		}
		if status == "" {
			empty = append(empty, "task name")
		}
		if len(empty) > 0 {
			result.Errors = append(result.Errors, RowIssue{
				Line:   line,
				AppNo:  appNo,
				Reason: "missing " + strings.Join(empty, ", "),
			})
			continue
		}

		if !isSanctioned(status) {
			result.Skipped = append(result.Skipped, RowIssue{
				Line:   line,
				AppNo:  appNo,
				Reason: fmt.Sprintf("status %q is not a sanctioned stage", status),
			})
			continue
		}

		result.Applications = append(result.Applications, store.ImportedApplication{
			ID:             util.NewID("app_"),
			AppNo:          appNo,
			CustomerName:   customerName,
			BranchName:     branchName,
			BranchCode:     field(colBranchCode),
			LoanNo:         field(colLoanNo),
			SanctionAmount: parseAmount(field(colSanctionAmount)),
			SanctionDate:   parseDate(field(colSanctionDate)),
			Email:          field(colEmail),
			LoginExecutive: field(colLoginExecutive),
			AssetType:      field(colAssetType),
			Status:         normalizeStatus(status),
			Remarks:        field(colRemarks),
			ImportedBy:     importedBy,
			ImportedAt:     now,
		})
	}

	return result, nil
}

func normalizeHeader(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, ".", " ")
	return strings.Join(strings.Fields(name), " ")
}

// normalizeStatus collapses the free-text task name into the canonical
// sanctioned/disbursed stage stored on the application.
func normalizeStatus(status string) string {
	if strings.Contains(strings.ToLower(status), "disburs") {
		return "disbursed"
	}
	return "sanctioned"
}

func isSanctioned(status string) bool {
	lowered := strings.ToLower(status)
	for _, keyword := range sanctionKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func isBlankRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func parseAmount(raw string) float64 {
	if raw == "" {
		return 0
	}
	cleaned := strings.NewReplacer(",", "", "₹", "", " ", "").Replace(raw)
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2/1/2006",
	"02-Jan-2006",
	time.RFC3339,
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed
		}
	}
	return nil
}
