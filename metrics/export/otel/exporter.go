// Package otel bridges engine metrics snapshots into an OpenTelemetry meter.
//
// The exporter registers observable instruments over the engine's lock-free
// counters, so collection cost is paid on the collector's schedule rather
// than on engine hot paths.
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/metrics/export/internaldefs"
)

// Source is the engine-shaped surface the exporter reads. *goEnroll.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() goEnroll.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter owns the callback registration. Stop unregisters it.
type Exporter struct {
	registration metric.Registration
}

// Start registers observable counters for every engine metric on the meter
// and begins serving snapshots through the meter's collection callbacks.
func Start(meter metric.Meter, src Source) (*Exporter, error) {
	counters := make(map[string]metric.Int64ObservableCounter, len(internaldefs.CounterDefs))
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+4)

	for _, def := range internaldefs.CounterDefs {
		inst, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel export: %s: %w", def.Name, err)
		}
		counters[def.Key] = inst
		observables = append(observables, inst)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped by the dispatcher."))
	if err != nil {
		return nil, fmt.Errorf("otel export: %w", err)
	}
	observables = append(observables, dropped)

	type histInstruments struct {
		bucket metric.Int64ObservableCounter
		sum    metric.Int64ObservableCounter
		count  metric.Int64ObservableCounter
	}
	histograms := make(map[string]histInstruments, len(internaldefs.HistogramDefs))
	for _, def := range internaldefs.HistogramDefs {
		bucket, err := meter.Int64ObservableCounter(def.Name+"_bucket", metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel export: %s: %w", def.Name, err)
		}
		sum, err := meter.Int64ObservableCounter(def.Name+"_sum", metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel export: %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableCounter(def.Name+"_count", metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel export: %s: %w", def.Name, err)
		}
		histograms[def.Key] = histInstruments{bucket: bucket, sum: sum, count: count}
		observables = append(observables, bucket, sum, count)
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := src.MetricsSnapshot()
		for key, inst := range counters {
			o.ObserveInt64(inst, internaldefs.SaturatingInt64(snap.Counters[key]))
		}
		o.ObserveInt64(dropped, internaldefs.SaturatingInt64(src.AuditDropped()))

		for key, insts := range histograms {
			hist, ok := snap.Histograms[key]
			if !ok {
				continue
			}
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(hist.Buckets[:]))
			for i, v := range cumulative {
				o.ObserveInt64(insts.bucket, internaldefs.SaturatingInt64(v),
					metric.WithAttributes(attribute.String("le", internaldefs.HistogramBoundSuffix(i))))
			}
			o.ObserveInt64(insts.sum, hist.SumMS)
			o.ObserveInt64(insts.count, internaldefs.SaturatingInt64(hist.Count))
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel export: register callback: %w", err)
	}

	return &Exporter{registration: registration}, nil
}

// Stop unregisters the collection callback.
func (e *Exporter) Stop() error {
	return e.registration.Unregister()
}
