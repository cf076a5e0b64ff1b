package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/phase-dimmer/internal/status"
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
	"micros": func(d time.Duration) string {
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	},
	"hz": func(f float64) string {
		if f == 0 {
			return "-"
		}
		return fmt.Sprintf("%.2f Hz", f)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Phase Dimmer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Phase Dimmer</h1>

<h2>Output</h2>
<table>
<tr><th>Brightness</th><td id="brightness" class="{{if gt .Dimmer.Brightness 0}}on{{else}}off{{end}}">{{.Dimmer.Brightness}}%</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>Signal</th><td class="{{if .SignalPresent}}connected{{else}}disconnected{{end}}">{{if .SignalPresent}}present{{else}}lost{{end}}</td></tr>
</table>
<form action="/" method="get">
<input type="range" name="brightness" min="0" max="100" value="{{.Dimmer.Brightness}}">
<input type="submit" value="Set">
</form>

<h2>Timing</h2>
<table>
<tr><th>Mains</th><td>{{hz .MainsHz}}</td></tr>
<tr><th>Half-cycle</th><td>{{micros .Dimmer.Period}}</td></tr>
<tr><th>Zero-crossing offset</th><td>{{micros .Dimmer.Offset}}</td></tr>
<tr><th>Trigger delay</th><td>{{micros .Dimmer.Delay}}</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Edges</th><td>{{.Dimmer.Edges}}</td></tr>
<tr><th>Arms</th><td>{{.Dimmer.Arms}}</td></tr>
<tr><th>Fires</th><td>{{.Dimmer.Fires}}</td></tr>
<tr><th>Dead-zone skips</th><td>{{.Dimmer.DeadZoneSkips}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Pins</th><td>zc={{.Config.PinZC}} gate={{.Config.PinGate}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Settle</th><td>{{.Config.SettleMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.SerialPort}}<tr><th>Serial</th><td>{{.Config.SerialPort}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot's derived values are methods; the template reads them as fields.
	data := struct {
		status.Snapshot
		Uptime        time.Duration
		Ready         bool
		SignalPresent bool
		MainsHz       float64
	}{
		Snapshot:      snap,
		Uptime:        snap.Uptime(),
		Ready:         snap.Ready(),
		SignalPresent: snap.SignalPresent(),
		MainsHz:       snap.MainsHz(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("http: render status page: %v", err)
	}
}
