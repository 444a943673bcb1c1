package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/meter-sensor/internal/pulse"
	"github.com/sweeney/meter-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"level": status.LevelName,
	"total": func(c pulse.Snapshot) int64 { return c.Store.Value + c.Tally },
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Meter Sensor</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ACTIVE { color: green; font-weight: bold; }
.IDLE { color: #888; }
.UNKNOWN { color: orange; }
.err { color: red; }
</style>
</head>
<body>
<h1>Meter Sensor ({{.Mode}})</h1>

{{range .Counters}}
<h2>{{.Name}}</h2>
<table>
<tr><th>Input</th><td class="{{level .}}">{{level .}}</td></tr>
<tr><th>Total</th><td>{{total .}}</td></tr>
<tr><th>Pending</th><td>{{.Tally}}</td></tr>
<tr><th>Persisted</th><td>{{.Store.Persisted}} ({{.Store.State}})</td></tr>
<tr><th>Generation</th><td>{{.Store.Generation}} (next slot {{.Store.Next}} of {{.Store.Capacity}})</td></tr>
<tr><th>Last report</th><td>{{.LastDelta}} at {{when .LastReport}}</td></tr>
{{if .Store.LastError}}<tr><th>Storage error</th><td class="err">{{.Store.LastError}}</td></tr>{{end}}
</table>
{{end}}

{{if .Sensors}}
<h2>Sensors</h2>
<table>
{{range $name, $v := .Sensors}}<tr><th>{{$name}}</th><td>{{printf "%.1f" $v}}</td></tr>
{{end}}</table>
{{end}}

<h2>Reporting</h2>
<table>
<tr><th>Transport</th><td>{{.Config.Transport}} {{.Config.Target}}</td></tr>
<tr><th>Sent</th><td>{{.Reporter.Sent}}</td></tr>
<tr><th>Failed</th><td>{{.Reporter.Failed}}</td></tr>
{{if .Reporter.LastError}}<tr><th>Last error</th><td class="err">{{.Reporter.LastError}}</td></tr>{{end}}
</table>

<h2>Tasks</h2>
<table>
{{range .Tasks}}<tr><th>{{.Name}}</th><td>every {{.Interval}}, {{.Runs}} runs{{if .Panics}}, <span class="err">{{.Panics}} panics</span>{{end}}</td></tr>
{{end}}</table>

<h2>Settings</h2>
<form method="post" action="/api/settings">
<table>
<tr><th>Energy (kWh)</th><td><input name="energy_kwh" value="{{.Settings.EnergyKWh}}"></td></tr>
<tr><th>Cold water</th><td><input name="cold_counter" value="{{.Settings.ColdWater}}"></td></tr>
<tr><th>Hot water</th><td><input name="hot_counter" value="{{.Settings.HotWater}}"></td></tr>
</table>
<button type="submit">Save</button>{{if not .SettingsValid}} <span class="err">no stored settings</span>{{end}}
</form>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Storage</th><td>{{.Config.StoragePath}} ({{.Config.Capacity}} slots per counter)</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
