// Package observe wires OpenTelemetry metrics for the voice pipeline, with a
// Prometheus exporter bridge so everything is scrapable at /metrics.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/vivabot-tech/lingualive"

// Metrics holds the metric instruments for the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// SessionDuration tracks how long voice sessions last.
	SessionDuration metric.Float64Histogram

	// TokenFetchDuration tracks credential endpoint latency.
	TokenFetchDuration metric.Float64Histogram

	// SessionsStarted counts sessions by persona.
	SessionsStarted metric.Int64Counter

	// FramesSent counts outbound mic frames, including silent burst frames.
	FramesSent metric.Int64Counter

	// AudioReceivedBytes counts inbound model audio volume.
	AudioReceivedBytes metric.Int64Counter

	// Interruptions counts barge-ins by source ("local" or "remote").
	Interruptions metric.Int64Counter

	// TurnsCompleted counts finished conversational turns.
	TurnsCompleted metric.Int64Counter

	// ActiveSessions tracks live sessions. It is 0 or 1 in practice since
	// one controller owns one session at a time.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks API request latency by method and path.
	HTTPRequestDuration metric.Float64Histogram

	// TimeToFirstAudio tracks how long the model takes to start speaking
	// after the user finishes talking.
	TimeToFirstAudio metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, tuned for interactive
// voice latencies at the low end and session lifetimes at the high end.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionDuration, err = m.Float64Histogram("lingualive.session.duration",
		metric.WithDescription("Duration of voice sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TokenFetchDuration, err = m.Float64Histogram("lingualive.token.fetch.duration",
		metric.WithDescription("Latency of ephemeral token fetches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("lingualive.sessions.started",
		metric.WithDescription("Total sessions started by persona."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("lingualive.frames.sent",
		metric.WithDescription("Total outbound audio frames sent to the model."),
	); err != nil {
		return nil, err
	}
	if met.AudioReceivedBytes, err = m.Int64Counter("lingualive.audio.received.bytes",
		metric.WithDescription("Total bytes of model audio received."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("lingualive.interruptions",
		metric.WithDescription("Total barge-in interruptions by source."),
	); err != nil {
		return nil, err
	}
	if met.TurnsCompleted, err = m.Int64Counter("lingualive.turns.completed",
		metric.WithDescription("Total completed conversational turns."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("lingualive.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("lingualive.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.TimeToFirstAudio, err = m.Float64Histogram("lingualive.audio.first_response.duration",
		metric.WithDescription("Delay between the end of user speech and the first model audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics instance backed by the
// global meter provider. Tests should use NewMetrics with their own provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSessionStart counts a started session. Nil-safe.
func (m *Metrics) RecordSessionStart(ctx context.Context, persona string) {
	if m == nil {
		return
	}
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("persona", persona)))
	m.ActiveSessions.Add(ctx, 1)
}

// RecordSessionEnd counts a finished session and its duration. Nil-safe.
func (m *Metrics) RecordSessionEnd(ctx context.Context, persona string, d time.Duration) {
	if m == nil {
		return
	}
	m.SessionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("persona", persona)))
	m.ActiveSessions.Add(ctx, -1)
}

// RecordInterruption counts a barge-in. source is "local" or "remote".
// Nil-safe.
func (m *Metrics) RecordInterruption(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.Interruptions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordFrameSent counts one outbound frame. Nil-safe.
func (m *Metrics) RecordFrameSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesSent.Add(ctx, 1)
}

// RecordAudioReceived counts inbound model audio bytes. Nil-safe.
func (m *Metrics) RecordAudioReceived(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.AudioReceivedBytes.Add(ctx, int64(n))
}

// RecordTurnComplete counts a finished turn. Nil-safe.
func (m *Metrics) RecordTurnComplete(ctx context.Context) {
	if m == nil {
		return
	}
	m.TurnsCompleted.Add(ctx, 1)
}

// RecordTimeToFirstAudio records response latency after user speech ends.
// Nil-safe.
func (m *Metrics) RecordTimeToFirstAudio(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstAudio.Record(ctx, d.Seconds())
}

// RecordTokenFetch records credential fetch latency. Nil-safe.
func (m *Metrics) RecordTokenFetch(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.TokenFetchDuration.Record(ctx, d.Seconds())
}
