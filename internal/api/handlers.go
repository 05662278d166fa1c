package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// EvaluateRequest asks for a single deployment evaluation.
type EvaluateRequest struct {
	Deployment string `json:"deployment" validate:"notblank"`
}

// EvaluateFleetRequest evaluates several deployments; empty uses the configured fleet.
type EvaluateFleetRequest struct {
	Deployments []string `json:"deployments,omitempty"`
}

// FleetEntry is one deployment's outcome in a fleet response.
type FleetEntry struct {
	Deployment string `json:"deployment"`
	Error      string `json:"error,omitempty"`
	Evaluation any    `json:"evaluation,omitempty"`
}

// EvaluateFleetResponse lists per-deployment outcomes in request order.
type EvaluateFleetResponse struct {
	Results []FleetEntry `json:"results"`
}

// TrainRequest trains the shared model on a deployment's history.
type TrainRequest struct {
	Deployment   string `json:"deployment" validate:"notblank"`
	HistoryHours int    `json:"history_hours,omitempty" validate:"gte=0"`
}

// ListAlertsRequest filters the alert book.
type ListAlertsRequest struct {
	Severity       string `json:"severity,omitempty" validate:"omitempty,oneof=critical warning info"`
	IncludeHistory bool   `json:"include_history,omitempty"`
	Limit          int    `json:"limit,omitempty" validate:"gte=0"`
}

// ListAlertsResponse carries active alerts, optional history and the summary.
type ListAlertsResponse struct {
	Active  []models.Alert      `json:"active"`
	History []models.Alert      `json:"history,omitempty"`
	Summary models.AlertSummary `json:"summary"`
}

// AlertRequest addresses a single alert.
type AlertRequest struct {
	ID string `json:"id" validate:"notblank"`
}

// PatternsRequest asks for recurring root causes of a deployment.
type PatternsRequest struct {
	Deployment string `json:"deployment" validate:"notblank"`
}

// PatternsResponse lists recurring root causes.
type PatternsResponse struct {
	Deployment string                  `json:"deployment"`
	Reports    int                     `json:"reports"`
	Patterns   []models.RecurringCause `json:"patterns"`
}

// HealthResponse reports service and model state.
type HealthResponse struct {
	Status       string   `json:"status"`
	ModelState   string   `json:"model_state"`
	ModelVersion string   `json:"model_version,omitempty"`
	Degraded     []string `json:"degraded,omitempty"`
	LatencyP95Ms float64  `json:"latency_p95_ms"`
}

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// ValidateRequest checks the validate tags of a request struct and reports the first
// violation.
func ValidateRequest(req any) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate request: %w", err)
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Errorf("%s is required", fe.Field())
	case "gte":
		return fmt.Errorf("%s must be >= %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Errorf("unknown %s %q", fe.Field(), fe.Value())
	default:
		return fmt.Errorf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// Validate checks required fields.
func (r EvaluateRequest) Validate() error { return ValidateRequest(r) }

// Validate checks required fields.
func (r TrainRequest) Validate() error { return ValidateRequest(r) }

// Validate checks the severity filter and limit.
func (r ListAlertsRequest) Validate() error { return ValidateRequest(r) }

func (r AlertRequest) Validate() error { return ValidateRequest(r) }

func (r PatternsRequest) Validate() error { return ValidateRequest(r) }

// ToStruct converts a JSON-tagged value into a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	if v == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("payload must be an object: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return s, nil
}

// FromStruct decodes a protobuf Struct into out. Unknown fields are ignored.
func FromStruct(s *structpb.Struct, out any) error {
	return decode(s, out, false)
}

// DecodeRequest strictly decodes a request payload and checks its validate tags.
func DecodeRequest(s *structpb.Struct, out any) error {
	if err := decode(s, out, true); err != nil {
		return err
	}
	return ValidateRequest(out)
}

func decode(s *structpb.Struct, out any, strict bool) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
