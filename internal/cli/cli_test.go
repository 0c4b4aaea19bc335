package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/okian/halfpace/internal/adapters/http/api"
	service "github.com/okian/halfpace/internal/app"
	"github.com/okian/halfpace/internal/domain/estimator"
	"github.com/okian/halfpace/internal/domain/extraction"
	"github.com/okian/halfpace/internal/domain/features"
	"github.com/okian/halfpace/internal/domain/record"
	"github.com/okian/halfpace/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func fixedModel(seconds float64) func(string) (estimator.Estimator, error) {
	return func(string) (estimator.Estimator, error) {
		return estimator.Func(func(context.Context, record.Input) (float64, error) {
			return seconds, nil
		}), nil
	}
}

// chatServer answers every chat completion with content.
func chatServer(content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestPredictCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	Convey("Given the predict command wired to a fake language model", t, func() {
		llm := chatServer(`{"sex":"mężczyzna","age":30,"time_5km_seconds":1500}`)
		defer llm.Close()
		_ = os.Setenv("HALFPACE_OPENAI_BASE_URL", llm.URL+"/v1")
		defer func() { _ = os.Unsetenv("HALFPACE_OPENAI_BASE_URL") }()

		var out, errOut bytes.Buffer
		opts := Options{Out: &out, Err: &errOut, Loader: fixedModel(6900.4)}

		Convey("When run with an API key", func() {
			code := Execute(context.Background(), opts,
				[]string{"predict", "--api-key", "sk-test", "Mam 30 lat, jestem mężczyzną, 5km biegnę w 25 minut"})

			Convey("Then the formatted time and details are printed", func() {
				So(code, ShouldEqual, 0)
				So(out.String(), ShouldContainSubstring, "Przewidywany czas na półmaraton (21 km): 01:55:00")
				So(out.String(), ShouldContainSubstring, "Płeć: M  Wiek: 30  Czas 5km: 25 min")
			})
		})

		Convey("When run with --json", func() {
			code := Execute(context.Background(), opts,
				[]string{"predict", "--json", "--api-key", "sk-test", "Mam 30 lat"})

			Convey("Then the full prediction is printed as JSON", func() {
				So(code, ShouldEqual, 0)
				var p service.Prediction
				So(json.Unmarshal(out.Bytes(), &p), ShouldBeNil)
				So(p.Formatted, ShouldEqual, "01:55:00")
				So(p.Record.Sex, ShouldEqual, "M")
			})
		})

		Convey("When run without any key", func() {
			if prev, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
				_ = os.Unsetenv("OPENAI_API_KEY")
				defer func() { _ = os.Setenv("OPENAI_API_KEY", prev) }()
			}
			code := Execute(context.Background(), opts, []string{"predict", "Mam 30 lat"})

			Convey("Then it fails with a key hint", func() {
				So(code, ShouldEqual, 1)
				So(errOut.String(), ShouldContainSubstring, "--api-key")
			})
		})

		Convey("When run without a description", func() {
			code := Execute(context.Background(), opts, []string{"predict"})

			Convey("Then argument validation fails", func() {
				So(code, ShouldEqual, 1)
			})
		})
	})

	Convey("Given the predict command and a model that cannot load", t, func() {
		var out, errOut bytes.Buffer
		opts := Options{Out: &out, Err: &errOut, Loader: func(string) (estimator.Estimator, error) {
			return nil, errors.New("open polmaraton_model.txt: no such file")
		}}

		Convey("When run", func() {
			code := Execute(context.Background(), opts, []string{"predict", "--api-key", "sk-test", "x"})

			Convey("Then it fails before calling the language model", func() {
				So(code, ShouldEqual, 1)
				So(errOut.String(), ShouldContainSubstring, "no such file")
			})
		})
	})
}

func TestRemoteCommand(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	Convey("Given a running server", t, func() {
		svc := service.New(
			service.WithExtractor("fake", extraction.Func(func(_ context.Context, text string) (features.Extracted, error) {
				f := features.Extracted{Sex: features.String("K"), Time5kmSeconds: features.Int(1620)}
				if text != "bez wieku" {
					f.Age = features.Int(41)
				}
				return f, nil
			})),
			service.WithEstimator(estimator.Func(func(context.Context, record.Input) (float64, error) {
				return 7384, nil
			})),
			service.WithDefaultAPIKey("sk-server"),
		)
		mux := http.NewServeMux()
		api.NewServer(svc).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		var out, errOut bytes.Buffer
		opts := Options{Out: &out, Err: &errOut}

		Convey("When asking for a prediction", func() {
			code := Execute(context.Background(), opts, []string{"remote", "--url", srv.URL + "/", "Kobieta, 41 lat, 5 km w 27 minut"})

			Convey("Then the server's answer is printed", func() {
				So(code, ShouldEqual, 0)
				So(out.String(), ShouldContainSubstring, "02:03:04")
				So(out.String(), ShouldContainSubstring, "Płeć: K  Wiek: 41  Czas 5km: 27 min")
			})
		})

		Convey("When the server reports missing fields", func() {
			code := Execute(context.Background(), opts, []string{"remote", "--url", srv.URL, "bez wieku"})

			Convey("Then the missing labels are reported", func() {
				So(code, ShouldEqual, 1)
				So(errOut.String(), ShouldContainSubstring, "Brakuje danych: Wiek")
			})
		})

		Convey("When the description is blank", func() {
			code := Execute(context.Background(), opts, []string{"remote", "--url", srv.URL, "   "})

			Convey("Then the server's error code is reported", func() {
				So(code, ShouldEqual, 1)
				So(errOut.String(), ShouldContainSubstring, api.CodeEmptyDescription)
			})
		})
	})
}

func TestHTTPClient(t *testing.T) {
	Convey("Given a server that answers with plain text", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer srv.Close()

		Convey("When predicting", func() {
			_, err := newHTTPClient(srv.URL, 0).Predict(context.Background(), "x", "")

			Convey("Then the status and body are reported", func() {
				So(errors.Is(err, ErrRemote), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "502")
				So(err.Error(), ShouldContainSubstring, "upstream down")
			})
		})
	})
}

func TestDescribe(t *testing.T) {
	Convey("Given pipeline errors", t, func() {
		Convey("Then missing fields name their labels", func() {
			err := describe(&service.MissingFieldsError{Fields: []string{features.FieldSex, features.FieldAge}})
			So(err.Error(), ShouldContainSubstring, "Brakuje danych: Płeć, Wiek")
			So(errors.Is(err, service.ErrMissingFields), ShouldBeTrue)
		})

		Convey("Then an empty description asks for input", func() {
			So(describe(service.ErrEmptyDescription).Error(), ShouldEqual, "Proszę wpisać opis!")
		})

		Convey("Then other failures keep their cause", func() {
			err := describe(estimator.ErrEstimation)
			So(errors.Is(err, estimator.ErrEstimation), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "Wystąpił błąd")
		})
	})
}
