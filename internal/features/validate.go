package features

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// ErrEmptySeries is returned when there is nothing to transform.
var ErrEmptySeries = errors.New("metric series is empty")

// ValidationError identifies the offending row and field of a malformed series.
type ValidationError struct {
	Row    int
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: field %s=%v: %s", e.Row, e.Field, e.Value, e.Reason)
}

var snapshotValidator = newSnapshotValidator()

func newSnapshotValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate rejects out-of-range values and non-monotonic timestamps. Values are
// never clamped here.
func Validate(series models.MetricSeries) error {
	if len(series) == 0 {
		return ErrEmptySeries
	}
	for i, snap := range series {
		if snap.Timestamp.IsZero() {
			return &ValidationError{Row: i, Field: "timestamp", Reason: "timestamp is required"}
		}
		if i > 0 && !snap.Timestamp.After(series[i-1].Timestamp) {
			return &ValidationError{
				Row:    i,
				Field:  "timestamp",
				Value:  float64(snap.Timestamp.Unix()),
				Reason: "timestamps must be strictly increasing",
			}
		}
		for _, f := range models.SnapshotFields {
			v := snap.Value(f)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ValidationError{Row: i, Field: string(f), Value: v, Reason: "must be finite"}
			}
		}
		if err := snapshotValidator.Struct(snap); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				fe := fieldErrs[0]
				return &ValidationError{
					Row:    i,
					Field:  fe.Field(),
					Value:  snap.Value(models.Field(fe.Field())),
					Reason: describeRule(fe.Tag(), fe.Param()),
				}
			}
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func describeRule(tag, param string) string {
	switch tag {
	case "gte":
		return "must be >= " + param
	case "lte":
		return "must be <= " + param
	default:
		return "failed " + tag + " " + param
	}
}
