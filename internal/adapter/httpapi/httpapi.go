// Package httpapi serves the dispatch table as POST /{tool} with flat
// JSON request and response bodies.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobmcallan/toolhost/internal/common"
	"github.com/bobmcallan/toolhost/internal/dispatch"
	"github.com/bobmcallan/toolhost/internal/handlers"
)

// maxBodyBytes bounds a single request body.
const maxBodyBytes = 1 << 20

// Handler routes tool calls into a dispatch table.
type Handler struct {
	table  *dispatch.Table
	logger *common.Logger
}

// New creates a handler for table.
func New(table *dispatch.Table, logger *common.Logger) *Handler {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Handler{table: table, logger: logger}
}

// Register mounts the tool route on r. Other methods on the same path
// answer 405.
func (h *Handler) Register(r chi.Router) {
	r.Post("/{tool}", h.Call)
}

// Routes returns a standalone router serving only the tool route.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.Register(r)
	return r
}

// Call handles POST /{tool}.
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tool")

	request, err := readRequest(r)
	if err != nil {
		writeError(w, &dispatch.Error{Code: dispatch.CodeInvalidArgument, Tool: name, Message: err.Error()})
		return
	}

	resp, err := h.table.Call(r.Context(), name, request)
	if err != nil {
		if code := dispatch.CodeOf(err); code == dispatch.CodeInternal {
			h.logger.Error().Str("tool", name).Err(err).Msg("tool call failed")
		} else {
			h.logger.Debug().Str("tool", name).Str("code", code.String()).Msg("tool call rejected")
		}
		writeError(w, err)
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error().Str("tool", name).Err(err).Msg("failed to encode result")
		writeError(w, &dispatch.Error{Code: dispatch.CodeInternal, Tool: name, Message: "result is not representable as JSON", Err: err})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(body, '\n'))
}

// readRequest decodes the body as a flat JSON object. An absent or
// empty body is an empty request.
func readRequest(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var request map[string]any
	if err := dec.Decode(&request); err != nil {
		return nil, fmt.Errorf("request body must be a JSON object: %w", err)
	}
	if dec.More() {
		return nil, errors.New("request body must hold a single JSON object")
	}
	if request == nil {
		request = map[string]any{}
	}
	return request, nil
}

// StatusFor maps a dispatch code to its HTTP status.
func StatusFor(code dispatch.Code) int {
	switch code {
	case dispatch.CodeNotFound:
		return http.StatusNotFound
	case dispatch.CodeInvalidArgument:
		return http.StatusBadRequest
	case dispatch.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case dispatch.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dispatch.CodeHandler:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON shape of a failed call.
type ErrorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Code   string `json:"code"`
	Tool   string `json:"tool,omitempty"`
	Field  string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := ErrorBody{Status: "error", Error: err.Error(), Code: dispatch.CodeInternal.String()}
	var dErr *dispatch.Error
	if errors.As(err, &dErr) {
		body.Code = dErr.Code.String()
		body.Tool = dErr.Tool
		body.Field = dErr.Field
	}
	handlers.WriteJSON(w, StatusFor(dispatch.CodeOf(err)), body)
}
