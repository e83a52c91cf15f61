// Package report renders company valuations as standalone HTML pages.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/services/encoder"
	"FinPeer/pkg/util"
)

// Light colors of the leverage traffic light.
const (
	colorRed    = "rgba(245, 124, 105, 0.7)"
	colorYellow = "rgba(247, 234, 134, 0.7)"
	colorGreen  = "rgba(163, 247, 156, 0.7)"
)

const page = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Code}} | {{.Bucket.Exchange}} {{.Bucket.Industry}}</title>
<style>
table { border-collapse: collapse; font-family: sans-serif; }
td, th { border: 1px solid #ccc; padding: 4px 8px; text-align: right; }
th { text-align: left; }
</style>
</head>
<body>
<h1>{{.Code}}</h1>
<p>{{.Bucket.Exchange}} / {{.Bucket.Industry}}{{if not .Admitted}} (not part of the peer group){{end}}</p>
<table>
<tr><th>Ratio</th><th>Value</th><th>Industry median</th><th>MAD</th></tr>
{{- range .Rows}}
<tr><th>{{.Name}}</th><td style="background-color: {{.Color}}">{{.Display}}</td><td>{{.Median}}</td><td>{{.MAD}}</td></tr>
{{- end}}
</table>
{{- if .ExtraRows}}
<h2>Ownership and leverage</h2>
<table>
{{- range .ExtraRows}}
<tr><th>{{.Name}}</th><td style="background-color: {{.Color}}">{{.Display}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- range .Tables}}
<h2>{{.Title}}</h2>
<table>
<tr><th></th>{{range .Periods}}<th>{{.}}</th>{{end}}</tr>
{{- range .Rows}}
<tr><th>{{.Name}}</th>{{range .Cells}}<td style="background-color: {{.Color}}">{{.Display}}</td>{{end}}</tr>
{{- end}}
</table>
{{- end}}
</body>
</html>
`

type row struct {
	Name    string
	Display string
	Color   template.CSS
	Median  string
	MAD     string
}

type cell struct {
	Display string
	Color   template.CSS
}

type tableRow struct {
	Name  string
	Cells []cell
}

type periodTable struct {
	Title   string
	Periods []string
	Rows    []tableRow
}

type view struct {
	*models.CompanyValuation
	Rows      []row
	ExtraRows []row
	Tables    []periodTable
}

// Renderer writes one HTML page per company under Dir/<exchange>/.
type Renderer struct {
	dir  string
	tmpl *template.Template
}

func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir, tmpl: template.Must(template.New("company").Parse(page))}
}

// Write renders v to w.
func (r *Renderer) Write(w io.Writer, v *models.CompanyValuation) error {
	return r.tmpl.Execute(w, buildView(v))
}

// Render writes the page of v to disk and returns its path.
func (r *Renderer) Render(v *models.CompanyValuation) (string, error) {
	var buf bytes.Buffer
	if err := r.Write(&buf, v); err != nil {
		return "", fmt.Errorf("render %s: %w", v.Code, err)
	}
	dir := filepath.Join(r.dir, util.SafeFileName(v.Bucket.Exchange))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, util.SafeFileName(v.Code)+".html")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func buildView(v *models.CompanyValuation) view {
	out := view{CompanyValuation: v}
	for _, name := range models.AllRatios {
		enc, ok := v.Encodings[name]
		if !ok {
			enc = models.Encoding{DisplayValue: encoder.Missing, Direction: models.DirectionNeutral}
		}
		st := encoder.StyleFor(name)
		median, mad := v.Snapshot.Lookup(name)
		out.Rows = append(out.Rows, row{
			Name:    string(name),
			Display: enc.DisplayValue,
			Color:   CellColor(enc),
			Median:  formatOpt(median.Ptr(), st),
			MAD:     formatOpt(mad.Ptr(), st),
		})
	}

	names := make([]string, 0, len(v.Extras))
	for name := range v.Extras {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		enc := v.Extras[name]
		color := CellColor(enc)
		if name == encoder.LeverageLight {
			color = LightColor(enc)
		}
		out.ExtraRows = append(out.ExtraRows, row{Name: name, Display: enc.DisplayValue, Color: color})
	}

	if t := buildTable("Highlights", v.History); t != nil {
		out.Tables = append(out.Tables, *t)
	}
	if t := buildTable("Earnings estimates", v.Estimates); t != nil {
		out.Tables = append(out.Tables, *t)
	}
	return out
}

func buildTable(title string, t *models.PeriodTable) *periodTable {
	if t == nil || len(t.Rows) == 0 {
		return nil
	}
	out := &periodTable{Title: title, Periods: t.Periods}
	for _, r := range t.Rows {
		tr := tableRow{Name: r.Name}
		for _, enc := range r.Cells {
			tr.Cells = append(tr.Cells, cell{Display: enc.DisplayValue, Color: CellColor(enc)})
		}
		out.Rows = append(out.Rows, tr)
	}
	return out
}

func formatOpt(v *float64, st models.Style) string {
	if v == nil {
		return encoder.Missing
	}
	return encoder.FormatValue(*v, st)
}

// CellColor shades a ratio cell: green or red with the encoding intensity as
// alpha, transparent when neutral.
func CellColor(enc models.Encoding) template.CSS {
	switch enc.Direction {
	case models.DirectionFavorable:
		return template.CSS(fmt.Sprintf("rgba(0, 230, 0, %.3f)", enc.Intensity))
	case models.DirectionUnfavorable:
		return template.CSS(fmt.Sprintf("rgba(230, 0, 0, %.3f)", enc.Intensity))
	case models.DirectionCaution:
		return colorYellow
	default:
		return "rgba(255, 255, 255, 0)"
	}
}

// LightColor is the fixed traffic-light palette.
func LightColor(enc models.Encoding) template.CSS {
	switch enc.Direction {
	case models.DirectionUnfavorable:
		return colorRed
	case models.DirectionCaution:
		return colorYellow
	case models.DirectionFavorable:
		return colorGreen
	default:
		return "rgba(255, 255, 255, 0)"
	}
}
