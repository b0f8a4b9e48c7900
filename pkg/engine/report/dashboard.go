package report

import (
	"html/template"
	"io"
	"maps"
	"slices"

	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
	"github.com/DrSkyle/wastewatch/pkg/version"
)

type dashboardData struct {
	Version  string
	Summary  Summary
	Items    []Item
	Failures []scan.Failure
	Chart    chartData
}

type chartData struct {
	Labels []string  `json:"labels"`
	Waste  []float64 `json:"waste"`
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>wastewatch scan {{.Summary.ScanID}}</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg: #050505;
            --surface: rgba(255, 255, 255, 0.03);
            --border: rgba(255, 255, 255, 0.1);
            --primary: #00FF99;
            --secondary: #874BFD;
            --danger: #FF3366;
            --text: #F8FAFC;
            --text-dim: #94A3B8;
        }
        * { box-sizing: border-box; }
        body {
            background: var(--bg);
            color: var(--text);
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
            margin: 0;
            padding: 40px;
            font-size: 14px;
        }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 40px; border-bottom: 1px solid var(--border); padding-bottom: 20px; }
        .logo { font-size: 1.5rem; font-weight: 700; letter-spacing: -1px; }
        .logo span { color: var(--primary); }
        .meta { color: var(--text-dim); }
        .kpi-grid { display: grid; grid-template-columns: repeat(3, 1fr); gap: 20px; margin-bottom: 40px; }
        .card { background: var(--surface); border: 1px solid var(--border); border-radius: 16px; padding: 24px; }
        .card h3 { margin: 0 0 10px 0; font-size: 0.75rem; color: var(--text-dim); text-transform: uppercase; letter-spacing: 1.2px; }
        .card .value { font-size: 2.5rem; font-weight: 700; }
        .card .value.cost { color: var(--danger); }
        .chart-container { background: var(--surface); border: 1px solid var(--border); border-radius: 16px; padding: 24px; height: 350px; margin-bottom: 40px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 12px 20px; text-align: left; border-bottom: 1px solid var(--border); white-space: nowrap; }
        th { color: var(--text-dim); font-size: 0.75rem; text-transform: uppercase; }
        .badge { padding: 4px 10px; border-radius: 20px; font-size: 0.7rem; font-weight: 700; }
        .badge.critical { background: rgba(255, 51, 102, 0.15); color: var(--danger); }
        .badge.high { background: rgba(135, 75, 253, 0.15); color: var(--secondary); }
        .badge.medium { background: rgba(0, 255, 153, 0.15); color: var(--primary); }
        .failures { color: var(--danger); margin-top: 40px; }
    </style>
</head>
<body>
    <div class="header">
        <div class="logo">waste<span>watch</span></div>
        <div class="meta">scan {{.Summary.ScanID}} &middot; rules {{.Summary.RuleSetVersion}} &middot; {{.Summary.GeneratedAt.Format "2006-01-02 15:04 MST"}} &middot; v{{.Version}}</div>
    </div>
    <div class="kpi-grid">
        <div class="card"><h3>Monthly waste</h3><div class="value cost">${{.Summary.MonthlyWaste.StringFixed 2}}</div></div>
        <div class="card"><h3>Already wasted</h3><div class="value cost">${{.Summary.AlreadyWasted.StringFixed 2}}</div></div>
        <div class="card"><h3>Findings</h3><div class="value">{{.Summary.Findings}}</div></div>
    </div>
    <div class="chart-container"><canvas id="byClassification"></canvas></div>
    <table>
        <thead><tr><th>Resource</th><th>Type</th><th>Region</th><th>Classification</th><th>Confidence</th><th>Monthly waste</th><th>Already wasted</th><th>Action</th></tr></thead>
        <tbody>
        {{- range .Items}}
            <tr><td>{{.ResourceID}}</td><td>{{.ResourceType}}</td><td>{{.Region}}</td><td>{{.Classification}}</td><td><span class="badge {{.Confidence}}">{{.Confidence}}</span></td><td>${{.MonthlyWaste.StringFixed 2}}</td><td>${{.AlreadyWasted.StringFixed 2}}</td><td>{{.Summary}}</td></tr>
        {{- end}}
        </tbody>
    </table>
    {{- if .Failures}}
    <div class="failures">
        {{- range .Failures}}
        <div>{{.Region}} {{.ResourceType}}: {{.Message}} ({{.Kind}})</div>
        {{- end}}
    </div>
    {{- end}}
    <script>
        const chart = {{.Chart}};
        new Chart(document.getElementById("byClassification"), {
            type: "bar",
            data: { labels: chart.labels, datasets: [{ label: "Monthly waste ($)", data: chart.waste, backgroundColor: "#FF3366" }] },
            options: { maintainAspectRatio: false, plugins: { legend: { display: false } } }
        });
    </script>
</body>
</html>
`))

// WriteHTML renders a standalone dashboard page.
func WriteHTML(w io.Writer, res *scan.Result, findings []finding.Finding) error {
	summary := Summarize(res, findings)
	data := dashboardData{
		Version:  version.Current,
		Summary:  summary,
		Items:    Items(findings),
		Failures: res.Failures,
	}
	for _, label := range slices.Sorted(maps.Keys(summary.ByClassification)) {
		data.Chart.Labels = append(data.Chart.Labels, label)
		data.Chart.Waste = append(data.Chart.Waste, summary.ByClassification[label].MonthlyWaste.InexactFloat64())
	}
	return dashboardTmpl.Execute(w, data)
}
