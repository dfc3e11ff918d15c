package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportHTML))
}

// TemplateData holds data for report rendering
type TemplateData struct {
	AppNo         string
	CustomerName  string
	Branch        string
	Status        string
	MarkedForTeam string
	RaisedBy      string
	SubmittedAt   time.Time
	SubQueries    []TemplateSubQuery
	Actions       []TemplateAction
	Messages      []TemplateMessage
}

// TemplateSubQuery holds one sub-query row for the report
type TemplateSubQuery struct {
	Position int
	Text     string
	Status   string
	Remarks  string
}

// TemplateAction holds one action-log row for the report
type TemplateAction struct {
	Action   string
	ActionBy string
	Team     string
	Remarks  string
	At       time.Time
}

// TemplateMessage holds one chat transcript row for the report
type TemplateMessage struct {
	Sender   string
	Team     string
	Message  string
	IsSystem bool
	At       time.Time
}

// RenderReportHTML renders the query report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Query Report {{.AppNo}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; margin: 1rem 0; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; font-size: 0.9em; }
    th { background: #f0f0f0; }
    .status { text-transform: uppercase; font-weight: bold; }
    .system { color: #888; font-style: italic; }
  </style>
</head>
<body>
  <h1>Query Report: {{.AppNo}}</h1>
  <div class="meta">
    {{.CustomerName}} | {{.Branch}} | marked for {{.MarkedForTeam}}<br>
    Raised by {{.RaisedBy}} on {{formatDate .SubmittedAt "Jan 2, 2006 15:04"}} |
    Status: <span class="status">{{.Status}}</span>
  </div>

  <h2>Queries</h2>
  <table>
    <tr><th>#</th><th>Query</th><th>Status</th><th>Remarks</th></tr>
    {{range .SubQueries}}
    <tr><td>{{.Position}}</td><td>{{.Text}}</td><td class="status">{{.Status}}</td><td>{{.Remarks}}</td></tr>
    {{end}}
  </table>

  {{if .Actions}}
  <h2>Action Log</h2>
  <table>
    <tr><th>Action</th><th>By</th><th>Team</th><th>Remarks</th><th>At</th></tr>
    {{range .Actions}}
    <tr><td class="status">{{.Action}}</td><td>{{.ActionBy}}</td><td>{{.Team}}</td><td>{{.Remarks}}</td><td>{{formatDate .At "Jan 2, 2006 15:04"}}</td></tr>
    {{end}}
  </table>
  {{end}}

  {{if .Messages}}
  <h2>Chat Transcript</h2>
  <table>
    <tr><th>At</th><th>Sender</th><th>Message</th></tr>
    {{range .Messages}}
    <tr{{if .IsSystem}} class="system"{{end}}><td>{{formatDate .At "Jan 2 15:04"}}</td><td>{{.Sender}}{{if .Team}} ({{.Team}}){{end}}</td><td>{{.Message}}</td></tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
