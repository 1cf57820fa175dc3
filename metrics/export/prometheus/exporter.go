package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() goFactor.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// New returns an Exporter reading from engine.
func New(engine *goFactor.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource returns an Exporter over any snapshot source.
func NewFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render over HTTP.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. Challenge and OTP counters are
// emitted as one series per delivery method; everything else is a single
// unlabeled series. Disabled metrics render as an empty string.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var out exposition
	out.Grow(8192)

	for _, def := range internaldefs.CounterDefs {
		out.family(def.Name, def.Help, "counter")
		methods, values, split := internaldefs.MethodSplit(snap, def.ID)
		if !split {
			out.sample(def.Name, "", "", snap.Counters[def.ID])
			continue
		}
		for i, m := range methods {
			out.sample(def.Name, internaldefs.MethodLabel, string(m), values[i])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID]))
		out.family(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			out.sample(def.Name+"_bucket", "le", le, cumulative[i])
		}
		out.sample(def.Name+"_count", "", "", cumulative[len(cumulative)-1])
		// Snapshots carry no sum.
		out.sample(def.Name+"_sum", "", "", 0)
	}

	out.family(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	out.sample(internaldefs.AuditDroppedName, "", "", dropped)

	return out.String()
}

type exposition struct {
	strings.Builder
}

func (e *exposition) family(name, help, kind string) {
	e.WriteString("# HELP ")
	e.WriteString(name)
	e.WriteByte(' ')
	e.WriteString(escapeHelp(help))
	e.WriteString("\n# TYPE ")
	e.WriteString(name)
	e.WriteByte(' ')
	e.WriteString(kind)
	e.WriteByte('\n')
}

// sample writes one line; an empty label key writes no label set.
func (e *exposition) sample(name, label, value string, v uint64) {
	e.WriteString(name)
	if label != "" {
		e.WriteByte('{')
		e.WriteString(label)
		e.WriteString(`="`)
		e.WriteString(escapeLabel(value))
		e.WriteString(`"}`)
	}
	e.WriteByte(' ')
	e.WriteString(strconv.FormatUint(v, 10))
	e.WriteByte('\n')
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}

func escapeLabel(v string) string {
	return labelEscaper.Replace(v)
}
