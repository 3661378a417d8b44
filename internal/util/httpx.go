package util

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an envelope onto its HTTP status.
func StatusFor(resp envelope.Response) int {
	switch r := resp.(type) {
	case envelope.Success:
		return http.StatusOK
	case envelope.Pending:
		return http.StatusAccepted
	case envelope.Failure:
		switch r.Code {
		case envelope.CodeInvalidInput:
			return http.StatusBadRequest
		case envelope.CodeNotFound:
			return http.StatusNotFound
		case envelope.CodeConfirmationExpired:
			return http.StatusGone
		case envelope.CodePermissionDenied:
			return http.StatusForbidden
		case envelope.CodeDatabaseError, envelope.CodeCacheUnavailable:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

// WriteEnvelope writes resp with the status StatusFor assigns it.
func WriteEnvelope(w http.ResponseWriter, resp envelope.Response) {
	if f, ok := resp.(envelope.Failure); ok && f.Code != envelope.CodeInvalidInput && f.Code != envelope.CodeNotFound {
		w.Header().Set("Cache-Control", "no-store")
	}
	WriteJSON(w, StatusFor(resp), resp)
}

// WriteError writes err as the error envelope.
func WriteError(w http.ResponseWriter, err error) {
	WriteEnvelope(w, envelope.FromError(err))
}

// ErrBodyTooLarge is returned by DecodeBody when the body exceeds its limit.
var ErrBodyTooLarge = envelope.InvalidInput("body", "request body is too large")

// DecodeBody reads at most maxBody bytes of JSON into dst. Unknown fields
// are rejected so typos surface as invalid input.
func DecodeBody(r *http.Request, maxBody int64, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return envelope.InvalidInput("body", "failed to read request body")
	}
	if int64(len(body)) > maxBody {
		return ErrBodyTooLarge
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return envelope.InvalidInput("body", "a JSON object is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return envelope.InvalidInput("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(q url.Values, name string) (*int, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, envelope.InvalidInput(name, "must be an integer")
	}
	return &n, nil
}

// QueryFloat parses an optional decimal query parameter.
func QueryFloat(q url.Values, name string) (*float64, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, envelope.InvalidInput(name, "must be a number")
	}
	return &f, nil
}

// QueryPage parses the limit and cursor parameters.
func QueryPage(q url.Values) (pagination.Request, error) {
	return pagination.ParseRequest(q.Get("limit"), q.Get("cursor"))
}
