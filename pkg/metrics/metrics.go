// Package metrics exposes Prometheus counters for the codec, the RTP
// receiver and the spool watcher. Nothing is collected until Init is
// called; callers guard every update with IsMetricsEnabled.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "g711enhance"

var (
	enabled  atomic.Bool
	initOnce sync.Once
	registry = prometheus.NewRegistry()

	FramesEncoded   *prometheus.CounterVec
	FramesDecoded   *prometheus.CounterVec
	FramesConcealed *prometheus.CounterVec
	Resyncs         prometheus.Counter
	UnstableLPC     prometheus.Counter
	ErasureLength   prometheus.Histogram

	RTPPackets        *prometheus.CounterVec
	RTPDroppedPackets *prometheus.CounterVec
	RTPLostPackets    *prometheus.CounterVec
	RTPJitter         *prometheus.GaugeVec

	SpoolJobs          *prometheus.CounterVec
	SpoolFramesWritten prometheus.Counter
)

// Init registers all collectors. Later calls are no-ops.
func Init() {
	initOnce.Do(func() {
		FramesEncoded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_encoded_total",
			Help:      "Frames quantized by the encoder",
		}, []string{"law"})
		FramesDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Frames produced by the decoder, by reception status",
		}, []string{"law", "status"})
		FramesConcealed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_concealed_total",
			Help:      "Lost frames synthesized by the concealment engine, by signal class",
		}, []string{"class"})
		Resyncs = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resynchronizations_total",
			Help:      "Concealed signals time-warped onto the first good frame",
		})
		UnstableLPC = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unstable_lpc_total",
			Help:      "Predictor fits rejected as unstable",
		})
		ErasureLength = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "erasure_length_frames",
			Help:      "Length of erasure runs in frames",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 24, 50},
		})

		RTPPackets = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtp_packets_total",
			Help:      "RTP packets accepted",
		}, []string{"stream_id"})
		RTPDroppedPackets = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtp_dropped_packets_total",
			Help:      "RTP packets discarded, by reason",
		}, []string{"stream_id", "reason"})
		RTPLostPackets = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtp_lost_packets_total",
			Help:      "RTP packets never received",
		}, []string{"stream_id"})
		RTPJitter = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rtp_jitter_samples",
			Help:      "Interarrival jitter estimate in timestamp units",
		}, []string{"stream_id"})

		SpoolJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spool_jobs_total",
			Help:      "Spooled bitstream files processed, by result",
		}, []string{"result"})
		SpoolFramesWritten = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spool_frames_written_total",
			Help:      "Frames written by spool jobs",
		})

		registry.MustRegister(
			FramesEncoded, FramesDecoded, FramesConcealed, Resyncs, UnstableLPC, ErasureLength,
			RTPPackets, RTPDroppedPackets, RTPLostPackets, RTPJitter,
			SpoolJobs, SpoolFramesWritten,
			collectors.NewGoCollector(),
		)
		enabled.Store(true)
	})
}

func IsMetricsEnabled() bool {
	return enabled.Load()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func RecordFrameEncoded(law string) {
	if FramesEncoded != nil {
		FramesEncoded.WithLabelValues(law).Inc()
	}
}

func RecordFrameDecoded(law string, lost bool) {
	if FramesDecoded == nil {
		return
	}
	status := "received"
	if lost {
		status = "lost"
	}
	FramesDecoded.WithLabelValues(law, status).Inc()
}

func RecordConcealment(class string) {
	if FramesConcealed != nil {
		FramesConcealed.WithLabelValues(class).Inc()
	}
}

// RecordErasure observes a finished erasure run.
func RecordErasure(frames int) {
	if ErasureLength != nil {
		ErasureLength.Observe(float64(frames))
	}
}

func RecordResync(n int) {
	if Resyncs != nil && n > 0 {
		Resyncs.Add(float64(n))
	}
}

func RecordUnstableLPC(n int) {
	if UnstableLPC != nil && n > 0 {
		UnstableLPC.Add(float64(n))
	}
}

func RecordRTPPacket(streamID string) {
	if RTPPackets != nil {
		RTPPackets.WithLabelValues(streamID).Inc()
	}
}

func RecordRTPDroppedPackets(streamID, reason string, n int) {
	if RTPDroppedPackets != nil {
		RTPDroppedPackets.WithLabelValues(streamID, reason).Add(float64(n))
	}
}

func RecordRTPLostPackets(streamID string, n int) {
	if RTPLostPackets != nil && n > 0 {
		RTPLostPackets.WithLabelValues(streamID).Add(float64(n))
	}
}

func SetRTPJitter(streamID string, jitter uint32) {
	if RTPJitter != nil {
		RTPJitter.WithLabelValues(streamID).Set(float64(jitter))
	}
}

func RecordSpoolJob(result string, frames int) {
	if SpoolJobs != nil {
		SpoolJobs.WithLabelValues(result).Inc()
	}
	if SpoolFramesWritten != nil && frames > 0 {
		SpoolFramesWritten.Add(float64(frames))
	}
}
