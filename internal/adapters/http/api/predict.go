package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/halfpace/internal/app"
	"github.com/okian/halfpace/internal/domain/estimator"
	"github.com/okian/halfpace/internal/domain/extraction"
	"github.com/okian/halfpace/internal/domain/features"
	"github.com/okian/halfpace/pkg/logger"
)

// Error codes returned by POST /predict.
const (
	CodeBadRequest        = "bad_request"
	CodeEmptyDescription  = "empty_description"
	CodeMissingAPIKey     = "missing_api_key"
	CodeMissingFields     = "missing_fields"
	CodeUnrecognizedSex   = "unrecognized_sex"
	CodeExtractionFailed  = "extraction_failed"
	CodeEstimationFailed  = "estimation_failed"
	CodeInvalidPrediction = "invalid_prediction"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal_error"
)

// predictRequest mirrors the OpenAPI schema for POST /predict.
type predictRequest struct {
	Description string `json:"description"`
	APIKey      string `json:"api_key"`
}

// missingFieldsResponse carries what was extracted so the caller can ask
// the runner for the rest.
type missingFieldsResponse struct {
	errorResponse
	Fields   []string           `json:"fields"`
	Labels   []string           `json:"labels"`
	Features features.Extracted `json:"features"`
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps Dependencies
}

// NewPredictHandler creates a new prediction handler.
func NewPredictHandler(deps Dependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req predictRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, WrapKind("api.predict.decode", ErrBadRequest, err))
		return
	}

	p, err := h.deps.Predict(r.Context(), service.Request{Text: req.Description, APIKey: req.APIKey})
	if err != nil {
		h.writePredictError(r.Context(), w, p, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PredictHandler) writePredictError(ctx context.Context, w http.ResponseWriter, p service.Prediction, err error) {
	var missing *service.MissingFieldsError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, CodeTimeout, WrapKind("api.predict", ErrTimeout, err))
	case errors.Is(err, service.ErrEmptyDescription):
		writeError(w, http.StatusBadRequest, CodeEmptyDescription, err)
	case errors.Is(err, service.ErrMissingAPIKey):
		writeError(w, http.StatusUnauthorized, CodeMissingAPIKey, err)
	case errors.As(err, &missing):
		writeJSON(w, http.StatusUnprocessableEntity, missingFieldsResponse{
			errorResponse: errorResponse{Code: CodeMissingFields, Message: err.Error()},
			Fields:        missing.Fields,
			Labels:        missing.Labels(),
			Features:      p.Features,
		})
	case errors.Is(err, service.ErrUnrecognizedSex):
		writeError(w, http.StatusUnprocessableEntity, CodeUnrecognizedSex, err)
	case errors.Is(err, extraction.ErrExtraction):
		writeError(w, http.StatusBadGateway, CodeExtractionFailed, err)
	case errors.Is(err, service.ErrInvalidPrediction):
		writeError(w, http.StatusInternalServerError, CodeInvalidPrediction, err)
	case errors.Is(err, estimator.ErrEstimation):
		writeError(w, http.StatusInternalServerError, CodeEstimationFailed, err)
	default:
		logger.Get().Error(ctx, "unclassified prediction error", logger.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, NewKind("api.predict", ErrInternal))
	}
}
