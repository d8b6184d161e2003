// Package metrics emits pipeline step metrics to StatsD and Prometheus.
package metrics

import (
	"errors"
	"time"

	obserrors "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/errors"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/statsd"
	"github.com/prometheus/client_golang/prometheus"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	// ResultRetry marks a step put back in the queue.
	ResultRetry = "retry"
)

// StepMetric describes the outcome of one pipeline step run.
type StepMetric struct {
	Kind     string
	Step     string
	Result   string
	Duration time.Duration
	Err      error
}

// Recorder fans step outcomes out to a StatsD sink and Prometheus collectors.
// Either side may be absent.
type Recorder struct {
	sink statsd.Sink

	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	queue    *prometheus.GaugeVec
}

// NewRecorder registers the step collectors on reg. A nil reg disables
// Prometheus output.
func NewRecorder(sink statsd.Sink, reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{sink: sink}
	if reg == nil {
		return r, nil
	}

	r.steps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "distributor",
		Name:      "pipeline_steps_total",
		Help:      "Pipeline step runs by kind, step, result and error class.",
	}, []string{"kind", "step", "result", "error_class"})
	r.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "distributor",
		Name:      "pipeline_step_duration_seconds",
		Help:      "Wall time of pipeline step runs.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"kind", "step"})
	r.queue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "distributor",
		Name:      "queue_jobs",
		Help:      "Step jobs by queue and status.",
	}, []string{"job_type", "status"})

	var err error
	if r.steps, err = register(reg, r.steps); err != nil {
		return nil, err
	}
	if r.duration, err = register(reg, r.duration); err != nil {
		return nil, err
	}
	if r.queue, err = register(reg, r.queue); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor so several recorders can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Step records one step outcome.
func (r *Recorder) Step(in StepMetric) {
	if r == nil {
		return
	}
	class := ""
	if in.Err != nil && in.Result != ResultSuccess {
		class = obserrors.Classify(in.Err)
	}

	if r.sink != nil {
		tags := map[string]string{"kind": in.Kind, "step": in.Step, "result": in.Result}
		if class != "" {
			tags["error_class"] = class
		}
		r.sink.Count("pipeline.step", 1, tags)
		if in.Duration > 0 {
			r.sink.Timing("pipeline.step_duration", in.Duration, CloneTags(tags))
		}
	}

	if r.steps != nil {
		r.steps.WithLabelValues(in.Kind, in.Step, in.Result, class).Inc()
		if in.Duration > 0 {
			r.duration.WithLabelValues(in.Kind, in.Step).Observe(in.Duration.Seconds())
		}
	}
}

// QueueDepth publishes the job counts of one queue.
func (r *Recorder) QueueDepth(jobType string, counts map[string]int) {
	if r == nil {
		return
	}
	for status, n := range counts {
		if r.sink != nil {
			r.sink.Gauge("queue.jobs", float64(n), map[string]string{"job_type": jobType, "status": status})
		}
		if r.queue != nil {
			r.queue.WithLabelValues(jobType, status).Set(float64(n))
		}
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
