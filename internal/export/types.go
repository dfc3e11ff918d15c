// Package export renders a query bundle's full report as PDF.
package export

import "errors"

// Request contains parameters for an export operation
type Request struct {
	QueryID        string
	IncludeChat    bool
	IncludeActions bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
