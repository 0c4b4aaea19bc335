// Package site serves the runner-facing form page.
package site

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/halfpace/internal/adapters/http/api"
	service "github.com/okian/halfpace/internal/app"
	"github.com/okian/halfpace/internal/domain/features"
	"github.com/okian/halfpace/pkg/logger"
)

// SessionCookie names the cookie that ties a browser to its stored API key.
const SessionCookie = "halfpace_session"

const maxFormBytes = 64 << 10

// Error constants
var (
	ErrRender = errors.New("page render failed")
)

// Key pages per extractor provider.
var keyURLs = map[string]string{
	"openai": "https://platform.openai.com/account/api-keys",
	"gemini": "https://aistudio.google.com/app/apikey",
}

// User-facing messages.
const (
	msgEmptyDescription = "Proszę wpisać opis!"
	msgMissingData      = "Brakuje danych: %s"
	msgMissingDataHint  = "Spróbuj ponownie i podaj wszystkie informacje!"
	msgFailure          = "Wystąpił błąd: %s"
	msgFailureHint      = "Spróbuj ponownie lub skontaktuj się z administratorem"
)

// Dependencies required by the form page.
type Dependencies interface {
	Predict(ctx context.Context, req service.Request) (service.Prediction, error)
	HasDefaultAPIKey() bool
	Provider() string
	SaveSessionKey(ctx context.Context, sessionID, apiKey string)
	SessionKey(ctx context.Context, sessionID string) (string, bool)
}

// Option configures the form page routes.
type Option func(*routes)

type routes struct {
	requestTimeout time.Duration
}

// WithRequestTimeout bounds each form submission; zero disables the deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *routes) {
		if d >= 0 {
			r.requestTimeout = d
		}
	}
}

// Register attaches the form page routes to mux.
func Register(ctx context.Context, mux *http.ServeMux, deps Dependencies, opts ...Option) error {
	if mux == nil {
		panic("mux is nil")
	}

	var cfg routes
	for _, opt := range opts {
		opt(&cfg)
	}

	h, err := NewRootHandler(deps)
	if err != nil {
		return err
	}

	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(FS())))
	mux.HandleFunc("/api-key", api.MetricsMiddleware(h.HandleAPIKey, "api_key"))
	mux.HandleFunc("/", api.MetricsMiddleware(api.TimeoutMiddleware(h.HandleRoot, cfg.requestTimeout), "root"))

	logger.Get().Debug(ctx, "site routes registered", logger.String("provider", deps.Provider()))
	return nil
}

// RootHandler renders the form and the prediction result.
type RootHandler struct {
	deps Dependencies
	tpl  *template.Template
}

// NewRootHandler creates a new root handler
func NewRootHandler(deps Dependencies) (*RootHandler, error) {
	tpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	return &RootHandler{deps: deps, tpl: tpl}, nil
}

type pageData struct {
	NeedsKey    bool
	Provider    string
	KeyURL      string
	Description string
	Features    string
	Error       *errorView
	Result      *resultView
}

type errorView struct {
	Message string
	Hint    string
	Detail  string
}

type resultView struct {
	Record         string
	Formatted      string
	Sex            string
	Age            int
	Time5kmMinutes int
}

// HandleRoot handles GET / and POST / requests.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	sessionID := h.session(w, r)
	apiKey, hasKey := h.deps.SessionKey(r.Context(), sessionID)
	data := pageData{
		NeedsKey: !hasKey && !h.deps.HasDefaultAPIKey(),
		Provider: h.deps.Provider(),
		KeyURL:   keyURL(h.deps.Provider()),
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodPost:
		if data.NeedsKey {
			break
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			data.Error = &errorView{Message: fmt.Sprintf(msgFailure, err), Hint: msgFailureHint}
			h.render(w, r, http.StatusBadRequest, data)
			return
		}
		data.Description = r.PostForm.Get("description")
		h.predict(r.Context(), &data, apiKey)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.render(w, r, http.StatusOK, data)
}

// HandleAPIKey handles POST /api-key and stores the key for this session.
func (h *RootHandler) HandleAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	sessionID := h.session(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if key := strings.TrimSpace(r.PostForm.Get("api_key")); key != "" {
		h.deps.SaveSessionKey(r.Context(), sessionID, key)
		logger.Get().Info(r.Context(), "api key stored for session", logger.String("session", sessionID))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *RootHandler) predict(ctx context.Context, data *pageData, apiKey string) {
	p, err := h.deps.Predict(ctx, service.Request{Text: data.Description, APIKey: apiKey})

	var missing *service.MissingFieldsError
	errors.As(err, &missing)
	if err == nil || missing != nil || p.Features != (features.Extracted{}) {
		data.Features = prettyJSON(p.Features)
	}

	switch {
	case err == nil:
		data.Result = &resultView{
			Record:         prettyJSON(p.Record),
			Formatted:      p.Formatted,
			Time5kmMinutes: p.Time5kmMinutes,
		}
		if p.Record != nil {
			data.Result.Sex = p.Record.Sex
			data.Result.Age = p.Record.Age
		}
	case errors.Is(err, service.ErrEmptyDescription):
		data.Features = ""
		data.Error = &errorView{Message: msgEmptyDescription}
	case errors.Is(err, service.ErrMissingAPIKey):
		data.NeedsKey = true
	case missing != nil:
		data.Error = &errorView{
			Message: fmt.Sprintf(msgMissingData, strings.Join(missing.Labels(), ", ")),
			Hint:    msgMissingDataHint,
		}
	default:
		data.Error = &errorView{
			Message: fmt.Sprintf(msgFailure, err),
			Hint:    msgFailureHint,
			Detail:  errorChain(err),
		}
	}
}

func (h *RootHandler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var buf bytes.Buffer
	if err := h.tpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		logger.Get().Error(r.Context(), "failed to render page", logger.Error(fmt.Errorf("%w: %w", ErrRender, err)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// session returns the session ID from the cookie, issuing a new one if absent.
func (h *RootHandler) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// errorChain renders every layer of err depth first, outermost first.
// Errors joined with several %w verbs contribute each branch.
func errorChain(err error) string {
	var b strings.Builder
	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if e == nil {
			return
		}
		fmt.Fprintf(&b, "%s%T: %v\n", strings.Repeat("  ", depth), e, e)
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, depth+1)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap(), depth+1)
		}
	}
	walk(err, 0)
	return b.String()
}

func keyURL(provider string) string {
	if u, ok := keyURLs[provider]; ok {
		return u
	}
	return keyURLs["openai"]
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
