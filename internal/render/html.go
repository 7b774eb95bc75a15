package render

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/i72421/pm-graph/internal/models"
)

// Report writes a self-contained HTML timeline of one reconstructed cycle:
// headline numbers, the phase-banded device timeline with a time scale,
// the phase legend, accumulated parse warnings, and the attached call
// graphs. Everything is inlined; the file needs no server to view.
func Report(w io.Writer, data *models.Data, warnings []models.ParseError) error {
	return reportTmpl.Execute(w, buildReport(data, warnings))
}

const rowHeight = 30
const graphIndent = 16

type reportView struct {
	Title       string
	StampLabel  string
	Host        string
	Mode        string
	SuspendMs   float64
	ResumeMs    float64
	DeviceCount int
	GraphCount  int
	Height      int
	Ticks       []tickView
	Phases      []phaseView
	Legend      []legendView
	Warnings    []models.ParseError
	Graphs      []graphView
}

type tickView struct {
	LeftPct float64
	Label   string
}

type phaseView struct {
	Name     string
	Color    string
	LeftPct  float64
	WidthPct float64
	Devices  []deviceView
}

type deviceView struct {
	ID       string
	Name     string
	LeftPct  float64
	WidthPct float64
	Top      int
	Title    string
	Tree     string
	TreeIDs  string
}

type legendView struct {
	Name  string
	Color string
}

type graphView struct {
	DeviceID   string
	DeviceName string
	Phase      string
	SpanMs     float64
	Lines      []graphLineView
}

type graphLineView struct {
	Indent   int
	Name     string
	LengthUs float64
	OffsetMs float64
}

func buildReport(data *models.Data, warnings []models.ParseError) reportView {
	v := reportView{
		Title:       "Suspend/Resume Timeline",
		SuspendMs:   data.SuspendTime(),
		ResumeMs:    data.ResumeTime(),
		DeviceCount: data.DeviceCount(),
		GraphCount:  data.GraphCount(),
		Warnings:    warnings,
	}
	if data.Stamp != nil {
		v.StampLabel = data.Stamp.Label()
		v.Host = data.Stamp.Host
		v.Mode = data.Stamp.Mode
	}

	total := data.End - data.Start
	if total <= 0 {
		total = 1
	}

	maxRows := 1
	for _, p := range data.Phases {
		if p.Rows > maxRows {
			maxRows = p.Rows
		}
	}
	v.Height = maxRows * rowHeight

	for _, p := range data.Phases {
		v.Legend = append(v.Legend, legendView{Name: p.Name, Color: p.Color})
		if p.Start < 0 || p.End < p.Start {
			continue
		}
		span := p.End - p.Start
		pv := phaseView{
			Name:     p.Name,
			Color:    p.Color,
			LeftPct:  (p.Start - data.Start) / total * 100,
			WidthPct: span / total * 100,
		}
		for _, dev := range p.SortedDevices() {
			dv := deviceView{
				ID:    dev.ID,
				Name:  dev.Name,
				Top:   dev.Row * rowHeight,
				Title: deviceTitle(dev),
			}
			if span > 0 {
				dv.LeftPct = (dev.Start - p.Start) / span * 100
				dv.WidthPct = (dev.End - dev.Start) / span * 100
			}
			if !p.IsCPUPhase() {
				tree := data.DeviceTree(dev.Name, p.Name)
				named := tree[:0:0]
				for _, n := range tree {
					if n != "" {
						named = append(named, n)
					}
				}
				dv.Tree = strings.Join(named, ",")
				dv.TreeIDs = strings.Join(data.DeviceIDs(named), ",")
			}
			pv.Devices = append(pv.Devices, dv)

			if dev.Graph != nil {
				v.Graphs = append(v.Graphs, buildGraph(dev, p))
			}
		}
		v.Phases = append(v.Phases, pv)
	}

	v.Ticks = timeScale(total)
	return v
}

func deviceTitle(dev *models.Device) string {
	title := dev.Name
	if dev.Length >= 0 {
		title += fmt.Sprintf(" (%.0f us)", dev.Length)
	} else {
		title += " (no return)"
	}
	if dev.Parent != "" {
		title += " parent: " + dev.Parent
	}
	return title
}

// buildGraph flattens one call graph for display. Pure returns carry no
// duration after the transfer onto their calls, so only calls and leaves
// are listed.
func buildGraph(dev *models.Device, p *models.Phase) graphView {
	g := dev.Graph
	gv := graphView{
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		Phase:      p.Name,
		SpanMs:     g.Span() * 1000,
	}
	for _, l := range g.Lines {
		if l.IsReturn && !l.IsCall {
			continue
		}
		name := l.Name
		if name == "" {
			name = l.Msg
		}
		gv.Lines = append(gv.Lines, graphLineView{
			Indent:   l.Depth * graphIndent,
			Name:     name,
			LengthUs: l.Length,
			OffsetMs: (l.Time - g.Start) * 1000,
		})
	}
	return gv
}

// timeScale picks a tick spacing that lands between roughly 5 and 15 ticks
// across the cycle and lays the ticks out as percentages.
func timeScale(total float64) []tickView {
	ladder := []float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20, 60}
	tick := ladder[len(ladder)-1]
	for _, step := range ladder {
		if total/step <= 15 {
			tick = step
			break
		}
	}
	var ticks []tickView
	for t := tick; t < total; t += tick {
		label := ""
		switch {
		case tick >= 1:
			label = fmt.Sprintf("%.0fs", t)
		case tick >= 0.1:
			label = fmt.Sprintf("%.1fs", t)
		default:
			label = fmt.Sprintf("%.0fms", t*1000)
		}
		ticks = append(ticks, tickView{LeftPct: t / total * 100, Label: label})
	}
	return ticks
}

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.3f", f) },
	"ms":  func(f float64) string { return fmt.Sprintf("%.3f", f) },
	"us":  func(f float64) string { return fmt.Sprintf("%.1f", f) },
}).Parse(tmplReport))

const tmplReport = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:Arial,sans-serif;background:#fff;color:#222;font-size:13px}
header{padding:12px 16px;border-bottom:1px solid #ccc}
h1{font-size:18px;margin-bottom:6px}
.stamp{color:#666;font-size:12px}
.cards{display:flex;gap:12px;margin:10px 16px;flex-wrap:wrap}
.card{border:1px solid #ccc;border-radius:4px;padding:8px 14px;min-width:110px;background:#f8f8f8}
.card .val{font-size:20px;font-weight:bold}
.card .lbl{font-size:11px;color:#666;margin-top:2px}
.timeline-wrap{margin:10px 16px;border:1px solid #aaa}
.timeline{position:relative;width:100%}
.phase{position:absolute;top:0;bottom:20px;border-right:1px solid rgba(0,0,0,.2)}
.dev{position:absolute;height:28px;line-height:28px;border:1px solid rgba(0,0,0,.35);border-radius:2px;background:rgba(204,204,204,.5);font-size:10px;padding:0 3px;overflow:hidden;white-space:nowrap;text-overflow:ellipsis;min-width:2px}
.dev:hover{background:rgba(136,136,136,.6)}
.timescale{position:absolute;left:0;right:0;bottom:0;height:20px;border-top:1px solid #aaa;background:#f0f0f0}
.tick{position:absolute;bottom:0;height:20px;border-left:1px solid #999;padding-left:3px;font-size:10px;color:#555;line-height:20px}
.legend{display:flex;gap:14px;margin:6px 16px 14px;flex-wrap:wrap;font-size:11px}
.legend .sw{display:inline-block;width:12px;height:12px;border:1px solid #999;vertical-align:middle;margin-right:4px}
h2{font-size:14px;margin:16px 16px 6px}
table{border-collapse:collapse;margin:0 16px 14px;font-size:12px}
th,td{border:1px solid #ccc;padding:4px 8px;text-align:left}
th{background:#f0f0f0}
article{margin:10px 16px;border:1px solid #ccc;border-radius:4px}
article header{background:#f0f0f0;border-bottom:1px solid #ccc;padding:6px 10px;font-weight:bold;font-size:12px}
.gline{font-family:monospace;font-size:11px;padding:1px 10px;white-space:nowrap}
.gline .dur{color:#666}
.gline .off{color:#999;margin-left:6px}
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
{{if .StampLabel}}<div class="stamp">{{.Host}} ({{.Mode}}) &mdash; {{.StampLabel}}</div>{{end}}
</header>
<div class="cards">
<div class="card"><div class="val">{{ms .SuspendMs}} ms</div><div class="lbl">Suspend</div></div>
<div class="card"><div class="val">{{ms .ResumeMs}} ms</div><div class="lbl">Resume</div></div>
<div class="card"><div class="val">{{.DeviceCount}}</div><div class="lbl">Device callbacks</div></div>
<div class="card"><div class="val">{{.GraphCount}}</div><div class="lbl">Call graphs</div></div>
</div>
<div class="timeline-wrap">
<div class="timeline" style="height:{{.Height}}px;min-height:80px">
{{range .Phases}}<div class="phase" style="left:{{pct .LeftPct}}%;width:{{pct .WidthPct}}%;background:{{.Color}}">
{{range .Devices}}<div class="dev" id="{{.ID}}" style="left:{{pct .LeftPct}}%;width:{{pct .WidthPct}}%;top:{{.Top}}px" title="{{.Title}}"{{if .Tree}} data-pm-tree="{{.Tree}}" data-pm-ids="{{.TreeIDs}}"{{end}}>{{.Name}}</div>
{{end}}</div>
{{end}}<div class="timescale">
{{range .Ticks}}<div class="tick" style="left:{{pct .LeftPct}}%">{{.Label}}</div>
{{end}}</div>
</div>
</div>
<div class="legend">
{{range .Legend}}<div><span class="sw" style="background:{{.Color}}"></span>{{.Name}}</div>
{{end}}</div>
{{if .Warnings}}
<h2>Parse warnings</h2>
<table>
<tr><th>Line</th><th>Reason</th><th>Content</th></tr>
{{range .Warnings}}<tr><td>{{.Line}}</td><td>{{.Reason}}</td><td>{{.Content}}</td></tr>
{{end}}</table>
{{end}}
{{if .Graphs}}
<h2>Call graphs</h2>
{{range .Graphs}}
<article id="graph-{{.DeviceID}}">
<header>{{.DeviceName}} <span style="font-weight:normal;color:#666">{{.Phase}} &mdash; {{ms .SpanMs}} ms</span></header>
{{range .Lines}}<div class="gline" style="padding-left:{{.Indent}}px">{{.Name}} <span class="dur">({{us .LengthUs}} us)</span><span class="off">+{{ms .OffsetMs}} ms</span></div>
{{end}}</article>
{{end}}
{{end}}
</body>
</html>
`
