package app

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"

	"loanops/api/internal/bulkimport"
)

// BulkUploadResult summarizes one CSV import for the upload response.
type BulkUploadResult struct {
	TotalRows      int
	Imported       int
	Skipped        int
	Failed         int
	SkippedDetails []bulkimport.RowIssue
	ErrorDetails   []bulkimport.RowIssue
	ArchiveKey     string
}

// BulkUpload parses a sanctioned-applications CSV and upserts the rows
// that pass the filter. The raw file is archived to object storage when
// that is configured; archive failures never fail the import.
func (s *Service) BulkUpload(ctx context.Context, filename, uploadedBy string, data []byte) (BulkUploadResult, error) {
	result, err := bulkimport.Parse(bytes.NewReader(data), uploadedBy)
	if err != nil {
		if errors.Is(err, bulkimport.ErrNoHeader) {
			return BulkUploadResult{}, domainError(400, "VALIDATION_ERROR", "CSV file is empty or has no header row", nil)
		}
		return BulkUploadResult{}, domainError(400, "VALIDATION_ERROR", err.Error(), nil)
	}

	archiveKey := ""
	if s.files != nil {
		key, archiveErr := s.files.StoreUpload(ctx, filename, uploadedBy, data)
		if archiveErr != nil {
			log.Printf("archive: store upload %s: %v", filename, archiveErr)
		} else {
			archiveKey = key
		}
	}

	imported := 0
	if len(result.Applications) > 0 {
		imported, err = s.store.InsertImportedApplications(ctx, result.Applications)
		if err != nil {
			return BulkUploadResult{}, err
		}
	}

	return BulkUploadResult{
		TotalRows:      result.TotalRows,
		Imported:       imported,
		Skipped:        len(result.Skipped),
		Failed:         len(result.Errors),
		SkippedDetails: firstIssues(result.Skipped, 15),
		ErrorDetails:   firstIssues(result.Errors, 15),
		ArchiveKey:     archiveKey,
	}, nil
}

// FetchArchivedUpload returns the original bytes of an archived bulk-upload
// file, addressed by the key returned at upload time.
func (s *Service) FetchArchivedUpload(ctx context.Context, key string) ([]byte, error) {
	if s.files == nil {
		return nil, domainError(503, "ARCHIVE_UNAVAILABLE", "Upload archiving is not configured", nil)
	}
	if strings.TrimSpace(key) == "" {
		return nil, domainError(400, "VALIDATION_ERROR", "key is required", map[string]any{"fields": []string{"key"}})
	}
	data, err := s.files.FetchUpload(ctx, key)
	if err != nil {
		log.Printf("archive: fetch upload %s: %v", key, err)
		return nil, domainError(404, "NOT_FOUND", "Archived upload not found", nil)
	}
	return data, nil
}

func firstIssues(issues []bulkimport.RowIssue, n int) []bulkimport.RowIssue {
	if len(issues) <= n {
		return issues
	}
	return issues[:n]
}
