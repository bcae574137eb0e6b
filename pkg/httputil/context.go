package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type ContextKey string

const (
	RequestIDCtxKey ContextKey = "RequestID"
	LogEntryCtxKey  ContextKey = "LogEntry"
	BasicAuthCtxKey ContextKey = "BasicAuth"
	RouteCtxKey     ContextKey = "Route"
)

// BasicAuthUser retrieves the authenticated username from the context.
func BasicAuthUser(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(BasicAuthCtxKey).(string)
	return user, ok
}

// RouteTemplate returns the template of the route being served, or "".
func RouteTemplate(ctx context.Context) string {
	t, _ := ctx.Value(RouteCtxKey).(string)
	return t
}

// RequestID retrieves the request ID set by the RequestID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDCtxKey).(string)
	return id
}

// Request is the inbound call as seen by a route handler.
// Params holds path parameter values in the order their placeholders appear in the route template.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	Params []string
}

// Param returns the i-th positional path parameter, or "" if absent.
func (r *Request) Param(i int) string {
	if i < 0 || i >= len(r.Params) {
		return ""
	}
	return r.Params[i]
}

// Response is the structured value a handler returns. Nothing is written to the
// client until the router serializes it.
type Response struct {
	Header http.Header
	Body   any
	HTML   string
	Status int
}

// JSONResponse returns a response that serializes body as JSON.
func JSONResponse(status int, body any) *Response {
	return &Response{Status: status, Body: body}
}

// HTMLResponse returns a text/html response.
func HTMLResponse(status int, html string) *Response {
	return &Response{Status: status, HTML: html}
}

// EmptyResponse returns a response with a status and no body.
func EmptyResponse(status int) *Response {
	return &Response{Status: status}
}

// Error is an error that carries the HTTP status it should be reported with.
type Error struct {
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

// NewError returns an *Error with a formatted message.
func NewError(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// JSON writes a pretty-printed JSON response with the given status code and data.
// Non-ASCII characters and HTML-significant characters are written unescaped.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// HTML writes an HTML response with the given status code and HTML content.
func HTML(w http.ResponseWriter, statusCode int, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(html)); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

// WriteError sends a JSON response with an error code and message.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, ErrorResponse{Error: message, Code: statusCode})
}

// Write serializes res onto w. Headers in res.Header are merged over any already set.
func Write(w http.ResponseWriter, res *Response) {
	for key, values := range res.Header {
		w.Header().Del(key)
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}

	switch {
	case res.HTML != "":
		HTML(w, status, res.HTML)
	case res.Body != nil:
		JSON(w, status, res.Body)
	default:
		w.WriteHeader(status)
	}
}
