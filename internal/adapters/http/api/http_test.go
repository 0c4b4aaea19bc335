package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/halfpace/internal/adapters/http/api"
	service "github.com/okian/halfpace/internal/app"
	"github.com/okian/halfpace/internal/domain/estimator"
	"github.com/okian/halfpace/internal/domain/extraction"
	"github.com/okian/halfpace/internal/domain/features"
	"github.com/okian/halfpace/internal/domain/record"
	"github.com/okian/halfpace/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies answers Predict with a fixed result.
type mockDependencies struct {
	prediction service.Prediction
	err        error
	readyErr   error
	stats      map[string]interface{}

	lastReq service.Request
	lastCtx context.Context
}

func (m *mockDependencies) Predict(ctx context.Context, req service.Request) (service.Prediction, error) {
	m.lastReq = req
	m.lastCtx = ctx
	return m.prediction, m.err
}

func (m *mockDependencies) Ready() error { return m.readyErr }

func (m *mockDependencies) GetStats() map[string]interface{} { return m.stats }

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func postPredict(mux http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{stats: map[string]interface{}{"predictionsTotal": 3}}
		mux := newMux(deps)

		Convey("Then the health endpoint reports a ready estimator", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decodeBody(w)
			So(body["status"], ShouldEqual, "ok")
			So(body["estimator"], ShouldEqual, "ready")
		})

		Convey("Then the health endpoint degrades when the estimator is not loaded", func() {
			deps.readyErr = estimator.ErrNotLoaded
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			body := decodeBody(w)
			So(body["status"], ShouldEqual, "degraded")
			So(body["error"], ShouldContainSubstring, "not loaded")
		})

		Convey("Then the stats endpoint returns the service counters", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["predictionsTotal"], ShouldEqual, 3.0)
		})

		Convey("Then the metrics endpoint exposes recorded HTTP metrics", func() {
			mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stats", nil))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then unknown paths are not found", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestPredictHandler(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	Convey("Given the predict endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When the pipeline succeeds", func() {
			in := record.Build("M", 30, 1500)
			deps.prediction = service.Prediction{
				Features: features.Extracted{
					Sex:            features.String("M"),
					Age:            features.Int(30),
					Time5kmSeconds: features.Int(1500),
				},
				Record:         &in,
				Seconds:        6900.4,
				Formatted:      "01:55:00",
				Time5kmMinutes: 25,
			}
			w := postPredict(mux, `{"description":"Mam 30 lat","api_key":"sk-user"}`)

			Convey("Then the prediction is returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				body := decodeBody(w)
				So(body["formatted"], ShouldEqual, "01:55:00")
				So(body["seconds"], ShouldEqual, 6900.4)
				So(body["time_5km_minutes"], ShouldEqual, 25.0)
				So(body["features"].(map[string]interface{})["age"], ShouldEqual, 30.0)
				So(body["record"], ShouldNotBeNil)
			})

			Convey("And the description and key reach the service", func() {
				So(deps.lastReq.Text, ShouldEqual, "Mam 30 lat")
				So(deps.lastReq.APIKey, ShouldEqual, "sk-user")
			})
		})

		Convey("When the body is not JSON", func() {
			w := postPredict(mux, `description=hello`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["code"], ShouldEqual, api.CodeBadRequest)
			})
		})

		Convey("When the body carries unknown fields", func() {
			w := postPredict(mux, `{"text":"hello"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the method is GET", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict", nil))

			Convey("Then it is rejected with Allow: POST", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldEqual, http.MethodPost)
			})
		})

		Convey("When fields are missing", func() {
			deps.prediction = service.Prediction{Features: features.Extracted{
				Sex:            features.String("K"),
				Time5kmSeconds: features.Int(1800),
			}}
			deps.err = &service.MissingFieldsError{Fields: []string{features.FieldAge}}
			w := postPredict(mux, `{"description":"Jestem kobietą"}`)

			Convey("Then the response lists fields, labels and partial features", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				body := decodeBody(w)
				So(body["code"], ShouldEqual, api.CodeMissingFields)
				So(body["fields"], ShouldResemble, []interface{}{"age"})
				So(body["labels"], ShouldResemble, []interface{}{"Wiek"})
				f := body["features"].(map[string]interface{})
				So(f["sex"], ShouldEqual, "K")
				So(f["age"], ShouldBeNil)
			})
		})

		statusCases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"an empty description", service.ErrEmptyDescription, http.StatusBadRequest, api.CodeEmptyDescription},
			{"no API key", service.ErrMissingAPIKey, http.StatusUnauthorized, api.CodeMissingAPIKey},
			{"a rejected sex value", fmt.Errorf("%w: %q", service.ErrUnrecognizedSex, "X"), http.StatusUnprocessableEntity, api.CodeUnrecognizedSex},
			{"an extraction failure", extraction.Wrap("test", errors.New("upstream 500")), http.StatusBadGateway, api.CodeExtractionFailed},
			{"an estimation failure", fmt.Errorf("%w: boom", estimator.ErrEstimation), http.StatusInternalServerError, api.CodeEstimationFailed},
			{"an invalid prediction", fmt.Errorf("%w: %v", service.ErrInvalidPrediction, math.NaN()), http.StatusInternalServerError, api.CodeInvalidPrediction},
			{"a deadline", extraction.Wrap("test", context.DeadlineExceeded), http.StatusGatewayTimeout, api.CodeTimeout},
			{"an unclassified error", errors.New("surprise"), http.StatusInternalServerError, api.CodeInternal},
		}
		for _, tc := range statusCases {
			Convey("When the service reports "+tc.name, func() {
				deps.err = tc.err
				w := postPredict(mux, `{"description":"x"}`)

				Convey("Then the status and code match", func() {
					So(w.Code, ShouldEqual, tc.status)
					So(decodeBody(w)["code"], ShouldEqual, tc.code)
				})
			})
		}
	})
}

func TestPredictHandler_Timeout(t *testing.T) {
	Convey("Given a server with a request timeout", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.WithRequestTimeout(50*time.Millisecond))

		Convey("When a prediction runs", func() {
			postPredict(mux, `{"description":"x"}`)

			Convey("Then the service sees a deadline", func() {
				deadline, ok := deps.lastCtx.Deadline()
				So(ok, ShouldBeTrue)
				So(time.Until(deadline) <= 50*time.Millisecond, ShouldBeTrue)
			})
		})
	})

	Convey("Given a server with the timeout disabled", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.WithRequestTimeout(0))

		Convey("When a prediction runs", func() {
			postPredict(mux, `{"description":"x"}`)

			Convey("Then the context has no deadline", func() {
				_, ok := deps.lastCtx.Deadline()
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestPredictHandler_WithService(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	Convey("Given the endpoint backed by the real service", t, func() {
		svc := service.New(
			service.WithExtractor("fake", extraction.Func(func(context.Context, string) (features.Extracted, error) {
				return features.Extracted{
					Sex:            features.String("kobieta"),
					Age:            features.Int(41),
					Time5kmSeconds: features.Int(1620),
				}, nil
			})),
			service.WithEstimator(estimator.Func(func(context.Context, record.Input) (float64, error) {
				return 7384, nil
			})),
			service.WithDefaultAPIKey("sk-default"),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		mux := newMux(svc)

		Convey("When posting a description without a key", func() {
			w := postPredict(mux, `{"description":"Kobieta, 41 lat, 5 km w 27 minut"}`)

			Convey("Then the default key is used and the time is formatted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["formatted"], ShouldEqual, "02:03:04")
				So(body["time_5km_minutes"], ShouldEqual, 27.0)
				So(body["record"].(map[string]interface{})["Płeć"], ShouldEqual, "K")
			})
		})

		Convey("When posting a blank description", func() {
			w := postPredict(mux, `{"description":"   "}`)

			Convey("Then it is an empty_description error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["code"], ShouldEqual, api.CodeEmptyDescription)
			})
		})
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	Convey("Given a handler behind the request ID middleware", t, func() {
		var seen string
		h := api.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = api.RequestID(r.Context())
		}))

		Convey("When the request carries no ID", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			Convey("Then a new one is assigned and echoed", func() {
				So(seen, ShouldNotBeEmpty)
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, seen)
			})
		})

		Convey("When the request carries an ID", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(api.RequestIDHeader, "req-42")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then it is kept", func() {
				So(seen, ShouldEqual, "req-42")
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-42")
			})
		})
	})
}

func TestKindErrors(t *testing.T) {
	Convey("Given operation-tagged errors", t, func() {
		cause := errors.New("unexpected EOF")
		err := api.WrapKind("api.predict.decode", api.ErrBadRequest, cause)

		Convey("Then both kind and cause match", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.predict.decode: bad request: unexpected EOF")
		})

		Convey("Then wrapping nil yields nil", func() {
			So(api.WrapKind("op", api.ErrBadRequest, nil), ShouldBeNil)
		})

		Convey("Then NewKind carries only the kind", func() {
			err := api.NewKind("api.predict", api.ErrInternal)
			So(errors.Is(err, api.ErrInternal), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.predict: internal error")
		})
	})
}
