package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authshield.MetricsSnapshot
	EventsDropped() uint64
}

type counterSeries struct {
	id  authshield.MetricID
	ins metric.Int64ObservableCounter
}

type histogramSeries struct {
	id      authshield.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter observes engine snapshots on every collection cycle.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	counters   []counterSeries
	histograms []histogramSeries
	dropped    metric.Int64ObservableCounter

	observables []metric.Observable
}

func NewExporter(meter metric.Meter, engine *authshield.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers one instrument per exported series and a
// single callback reading source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	for _, step := range []func(metric.Meter) error{e.addCounters, e.addHistograms, e.addDropped} {
		if err := step(meter); err != nil {
			return nil, err
		}
	}

	reg, err := meter.RegisterCallback(e.observe, e.observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) addCounters(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterSeries{id: def.ID, ins: ins})
		e.observables = append(e.observables, ins)
	}
	return nil
}

func (e *Exporter) gauge(meter metric.Meter, name, help string) (metric.Int64ObservableGauge, error) {
	ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help), metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("gauge %s: %w", name, err)
	}
	e.observables = append(e.observables, ins)
	return ins, nil
}

func (e *Exporter) addHistograms(meter metric.Meter) error {
	for _, def := range internaldefs.HistogramDefs {
		s := histogramSeries{id: def.ID}
		var err error
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			if s.buckets[i], err = e.gauge(meter, def.Name+"_bucket_le_"+suffix, def.Help+" Cumulative bucket."); err != nil {
				return err
			}
		}
		if s.count, err = e.gauge(meter, def.Name+"_count", def.Help+" Sample count."); err != nil {
			return err
		}
		e.histograms = append(e.histograms, s)
	}
	return nil
}

func (e *Exporter) addDropped(meter metric.Meter) error {
	ins, err := meter.Int64ObservableCounter(internaldefs.EventsDroppedName, metric.WithDescription(internaldefs.EventsDroppedHelp))
	if err != nil {
		return fmt.Errorf("counter %s: %w", internaldefs.EventsDroppedName, err)
	}
	e.dropped = ins
	e.observables = append(e.observables, ins)
	return nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snap.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets[i], int64(v))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.dropped, int64(e.source.EventsDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
