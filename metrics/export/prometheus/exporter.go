// Package prometheus renders engine metrics snapshots in the Prometheus text
// exposition format without importing the Prometheus client library. The
// engine's counters are already atomic; a scrape is a snapshot plus string
// assembly.
package prometheus

import (
	"fmt"
	"net/http"
	"strings"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/metrics/export/internaldefs"
)

// Source is the engine-shaped surface the exporter reads. *goEnroll.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() goEnroll.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders scrapes from a Source.
type Exporter struct {
	src Source
}

// New describes the new operation and its observable behavior.
func New(src Source) *Exporter {
	return &Exporter{src: src}
}

// Render produces one full text-format exposition.
func (e *Exporter) Render() string {
	snap := e.src.MetricsSnapshot()
	var b strings.Builder

	for _, def := range internaldefs.CounterDefs {
		writeHeader(&b, def.Name, def.Help, "counter")
		fmt.Fprintf(&b, "%s %d\n", def.Name, snap.Counters[def.Key])
	}

	writeHeader(&b, internaldefs.AuditDroppedName, "Audit events dropped by the dispatcher.", "counter")
	fmt.Fprintf(&b, "%s %d\n", internaldefs.AuditDroppedName, e.src.AuditDropped())

	for _, def := range internaldefs.HistogramDefs {
		hist, ok := snap.Histograms[def.Key]
		if !ok {
			continue
		}
		writeHeader(&b, def.Name, def.Help, "histogram")
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(hist.Buckets[:]))
		for i, v := range cumulative {
			fmt.Fprintf(&b, "%s_bucket{le=%q} %d\n", def.Name, internaldefs.HistogramBoundSuffix(i), v)
		}
		fmt.Fprintf(&b, "%s_sum %d\n", def.Name, hist.SumMS)
		fmt.Fprintf(&b, "%s_count %d\n", def.Name, hist.Count)
	}
	return b.String()
}

// Handler returns an http.Handler serving scrapes at any mounted path.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
}
