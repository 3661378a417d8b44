// Package envelope defines the uniform response envelope returned by every
// salesdesk operation and the error taxonomy that feeds its error variant.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Status is the envelope discriminant.
type Status string

const (
	StatusSuccess             Status = "success"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusError               Status = "error"
)

// Response is one of Success, Pending or Failure.
type Response interface {
	Status() Status
	isResponse()
}

// Success carries the result of an operation.
type Success struct {
	Data     any
	Metadata any
}

// Pending reports a staged mutation that awaits approval or rejection.
type Pending struct {
	ConfirmationID string
	Message        string
}

// Failure is the error variant. Field is informational and names the
// offending request field for invalid-input failures.
type Failure struct {
	Code            Code
	Message         string
	SuggestedAction string
	Field           string
}

func (Success) Status() Status { return StatusSuccess }
func (Pending) Status() Status { return StatusPendingConfirmation }
func (Failure) Status() Status { return StatusError }

func (Success) isResponse() {}
func (Pending) isResponse() {}
func (Failure) isResponse() {}

// OK builds a Success without metadata.
func OK(data any) Success { return Success{Data: data} }

type wireSuccess struct {
	Status   Status `json:"status"`
	Data     any    `json:"data"`
	Metadata any    `json:"metadata,omitempty"`
}

type wirePending struct {
	Status         Status `json:"status"`
	ConfirmationID string `json:"confirmationId"`
	Message        string `json:"message"`
}

type wireFailure struct {
	Status          Status `json:"status"`
	Code            Code   `json:"code"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggestedAction"`
	Field           string `json:"field,omitempty"`
}

func (s Success) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireSuccess{Status: StatusSuccess, Data: s.Data, Metadata: s.Metadata})
}

func (p Pending) MarshalJSON() ([]byte, error) {
	return json.Marshal(wirePending{Status: StatusPendingConfirmation, ConfirmationID: p.ConfirmationID, Message: p.Message})
}

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFailure{
		Status:          StatusError,
		Code:            f.Code,
		Message:         f.Message,
		SuggestedAction: f.SuggestedAction,
		Field:           f.Field,
	})
}

// Decode parses a JSON envelope into its variant. Success data and metadata
// are left as json.RawMessage.
func Decode(raw []byte) (Response, error) {
	var head struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	switch head.Status {
	case StatusSuccess:
		var w struct {
			Data     json.RawMessage `json:"data"`
			Metadata json.RawMessage `json:"metadata"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("envelope: success: %w", err)
		}
		s := Success{Data: w.Data}
		if len(w.Metadata) > 0 {
			s.Metadata = w.Metadata
		}
		return s, nil
	case StatusPendingConfirmation:
		var w wirePending
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("envelope: pending: %w", err)
		}
		if w.ConfirmationID == "" {
			return nil, fmt.Errorf("envelope: pending_confirmation without confirmationId")
		}
		return Pending{ConfirmationID: w.ConfirmationID, Message: w.Message}, nil
	case StatusError:
		var w wireFailure
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("envelope: error: %w", err)
		}
		if w.Code == "" {
			return nil, fmt.Errorf("envelope: error without code")
		}
		return Failure{Code: w.Code, Message: w.Message, SuggestedAction: w.SuggestedAction, Field: w.Field}, nil
	default:
		return nil, fmt.Errorf("envelope: unknown status %q", head.Status)
	}
}
