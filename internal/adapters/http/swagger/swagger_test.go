package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/smartystreets/goconvey/convey"
)

func TestSwaggerHandler(t *testing.T) {
	convey.Convey("Given a swagger handler", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()

		convey.Convey("When registering the swagger handler", func() {
			Register(ctx, mux)

			convey.Convey("Then it should handle /openapi.yaml route", func() {
				req := httptest.NewRequest("GET", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Body.Len(), convey.ShouldBeGreaterThan, 0)
			})

			convey.Convey("And it should handle /api-docs route", func() {
				req := httptest.NewRequest("GET", "/api-docs", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "halfpace API Docs")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "redoc-container")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, RedocURL)
			})
		})

		convey.Convey("When registering on a nil mux", func() {
			convey.So(func() { Register(ctx, nil) }, convey.ShouldPanic)
		})
	})
}

func TestOpenAPIDocument(t *testing.T) {
	convey.Convey("Given the embedded OpenAPI document", t, func() {
		doc, err := yaml.Parser().Unmarshal(OpenAPI)

		convey.Convey("Then it parses as YAML", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(doc["openapi"], convey.ShouldEqual, "3.0.3")
		})

		convey.Convey("Then it documents every API route", func() {
			paths, ok := doc["paths"].(map[string]interface{})
			convey.So(ok, convey.ShouldBeTrue)
			for _, p := range []string{"/predict", "/healthz", "/metrics", "/stats", "/", "/api-key"} {
				convey.So(paths, convey.ShouldContainKey, p)
			}
		})

		convey.Convey("Then the predict endpoint lists its error statuses", func() {
			paths := doc["paths"].(map[string]interface{})
			post := paths["/predict"].(map[string]interface{})["post"].(map[string]interface{})
			responses := post["responses"].(map[string]interface{})
			for _, code := range []string{"200", "400", "401", "422", "500", "502", "504"} {
				convey.So(responses, convey.ShouldContainKey, code)
			}
		})
	})
}

func TestSwaggerErrors(t *testing.T) {
	convey.Convey("Given swagger error constants", t, func() {
		convey.Convey("Then ErrServe should be defined", func() {
			convey.So(ErrServe, convey.ShouldNotBeNil)
			convey.So(ErrServe.Error(), convey.ShouldEqual, "swagger serve failed")
		})
	})
}
