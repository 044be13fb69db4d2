package reporting

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

const HTMLReporterName = "html"

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// templateFuncs returns the functions available to report templates
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"statusClass": func(status fmt.Stringer) string {
			return strings.ToLower(status.String())
		},
		"upper": strings.ToUpper,
		"inc": func(i int) int {
			return i + 1
		},
		"formatTime": func(t time.Time) string {
			return t.Format(time.RFC3339)
		},
	}
}

// getHTMLTemplate parses an embedded template by file name
func getHTMLTemplate(name string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs()).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

var _ Reporter = (*HTMLReporter)(nil)

// HTMLReporter writes <dir>/<runID>.html
type HTMLReporter struct {
	fileReporter
	tmpl *template.Template
}

// NewHTMLReporter creates a new HTML reporter using the embedded run template
func NewHTMLReporter() (*HTMLReporter, error) {
	tmpl, err := getHTMLTemplate("run.html.tmpl")
	if err != nil {
		return nil, err
	}
	return &HTMLReporter{tmpl: tmpl}, nil
}

func (r *HTMLReporter) Name() string {
	return HTMLReporterName
}

func (r *HTMLReporter) GenerateReportFor(ctx context.Context, run *types.Run) error {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, BuildReport(run)); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	_, err := r.writeFile(run.ID+".html", buf.Bytes())
	return err
}
