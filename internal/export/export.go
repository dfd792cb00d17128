// Package export renders a saved attempt for download.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pavelanni/casesim/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// ParseFormat accepts "json", "md" and "markdown".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "application/json"
}

// Filename is the download name for e: the case id plus extension.
func Filename(e model.SaveEntry, f Format) string {
	return e.Case.ID + "." + string(f)
}

// Render writes e in the requested format.
func Render(e model.SaveEntry, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(e)
	case FormatMarkdown:
		s, err := Markdown(e)
		return []byte(s), err
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}

// JSON is the pretty-printed entry.
func JSON(e model.SaveEntry) ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal JSON: %w", err)
	}
	return data, nil
}

var markdownTmpl = template.Must(template.New("md").Funcs(template.FuncMap{
	"savedAt": func(ms int64) string {
		return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05 UTC")
	},
	"orDash": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return s
	},
}).Parse(`# {{.Case.Meta.Title}}

**Specialty:** {{.Specialty}}  
**Difficulty:** {{.Difficulty}}  
**Saved at:** {{savedAt .CreatedAt}}

## Final Diagnosis
{{orDash .Submission.DX}}

## Initial Management
{{range .Submission.Mgmt}}- {{.}}
{{else}}- -
{{end}}
## Actions Taken
{{range .Submission.Picks}}- {{.}}
{{else}}- -
{{end}}
## Score
**Total:** {{.Score.Total}}  
**Local:** {{.Score.Local}}
`))

// Markdown renders the human-readable summary of e.
func Markdown(e model.SaveEntry) (string, error) {
	var buf bytes.Buffer
	if err := markdownTmpl.Execute(&buf, e); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
