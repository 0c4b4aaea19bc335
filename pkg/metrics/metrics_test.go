package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with defaults", func() {
				So(manager, ShouldNotBeNil)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithLatencyBuckets([]float64{0.1, 0.5, 1.0}),
				WithPredictionBuckets([]float64{5400, 7200}),
				WithMetricsEnabled(true),
				WithRefreshInterval(5*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.predictions.WithLabelValues(OutcomeSuccess).Inc()

			Convey("Then names and constant labels follow the options", func() {
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, mf := range families {
					if mf.GetName() == "test_namespace_test_subsystem_predictions_total" {
						found = true
						So(mf.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When metrics are disabled", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))
			manager.predictions.WithLabelValues(OutcomeSuccess).Inc()

			Convey("Then nothing reaches the supplied registry", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
			})
		})

		Convey("When creating with empty option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithLatencyBuckets(nil),
				WithPredictionBuckets(nil),
				WithRefreshInterval(0),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "halfpace")
				So(manager.subsystem, ShouldEqual, "predictor")
				So(manager.predictionBuckets, ShouldHaveLength, 12)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording prediction outcomes", func() {
			before := testutil.ToFloat64(globalManager.predictions.WithLabelValues(OutcomeMissingFields))
			RecordPrediction(OutcomeMissingFields)
			RecordPrediction(OutcomeMissingFields)

			Convey("Then the outcome counter grows", func() {
				after := testutil.ToFloat64(globalManager.predictions.WithLabelValues(OutcomeMissingFields))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording missing fields", func() {
			before := testutil.ToFloat64(globalManager.missingFields.WithLabelValues("age"))
			RecordMissingField("age")

			Convey("Then the per-field counter grows", func() {
				So(testutil.ToFloat64(globalManager.missingFields.WithLabelValues("age"))-before, ShouldEqual, 1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateModelLoaded(true)
			UpdateSessions(3)
			UpdateExtractorCacheSize(2)
			RecordModelLoadDuration(42)

			Convey("Then the gauges hold the values", func() {
				So(testutil.ToFloat64(globalManager.modelLoaded), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.extractorCacheSize), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.modelLoadDurationMs), ShouldEqual, 42)
				UpdateModelLoaded(false)
				So(testutil.ToFloat64(globalManager.modelLoaded), ShouldEqual, 0)
			})
		})

		Convey("When observing latencies and errors", func() {
			So(func() {
				RecordPredictionLatency(812)
				RecordExtractionLatency("openai", 790)
				RecordEstimationLatency(0.2)
				RecordPredictedSeconds(6900)
				RecordUnrecognizedSex()
				RecordHTTPRequest("/predict", "POST", "200")
				RecordHTTPRequestDuration("/predict", "POST", "200", 815)
				RecordErrorByComponent("extraction", "timeout")
				RecordErrorByEndpoint("/predict", "POST", "extraction_failed")
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			Convey("Then the registry exposes them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, mf := range families {
					names = append(names, mf.GetName())
				}
				joined := strings.Join(names, ",")
				So(joined, ShouldContainSubstring, "halfpace_predictor_extraction_latency_milliseconds")
				So(joined, ShouldContainSubstring, "halfpace_predictor_predicted_duration_seconds")
				So(joined, ShouldContainSubstring, "halfpace_predictor_http_requests_total")
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func() {
					for j := 0; j < 100; j++ {
						RecordPrediction(OutcomeSuccess)
						RecordExtractionLatency("gemini", float64(j))
						RecordHTTPRequest("/predict", "POST", "200")
					}
					done <- true
				}()
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(testutil.ToFloat64(globalManager.predictions.WithLabelValues(OutcomeSuccess)), ShouldBeGreaterThanOrEqualTo, 1000)
			})
		})
	})
}
