// Package report defines the canonical vaccination report shared by both
// input formats, the parsers that produce it, and the shot-sum aggregator.
package report

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"vaxingest/internal/types"
)

// Int is an integer field that remembers whether the source supplied it.
// The zero value is "absent", which is distinct from a present zero.
type Int struct {
	Value int
	Valid bool
}

// IntOf returns a present Int.
func IntOf(v int) Int {
	return Int{Value: v, Valid: true}
}

// OrZero returns the value, or 0 when absent.
func (i Int) OrZero() int {
	if !i.Valid {
		return 0
	}
	return i.Value
}

// Date is the report's calendar date as three separately reported fields.
type Date struct {
	Month Int `json:"month" validate:"present,min=1,max=12"`
	Day   Int `json:"day" validate:"present,min=1,max=31"`
	Year  Int `json:"year" validate:"present,min=1,max=9999"`
}

// Time returns the date as UTC midnight. It fails when the fields are absent
// or do not name a real Gregorian date (e.g. February 30).
func (d Date) Time() (time.Time, error) {
	if !d.Month.Valid || !d.Day.Valid || !d.Year.Valid {
		return time.Time{}, errors.New("date is incomplete")
	}
	t := time.Date(d.Year.Value, time.Month(d.Month.Value), d.Day.Value, 0, 0, 0, 0, time.UTC)
	if t.Year() != d.Year.Value || int(t.Month()) != d.Month.Value || t.Day() != d.Day.Value {
		return time.Time{}, fmt.Errorf("%04d-%02d-%02d is not a calendar date", d.Year.Value, d.Month.Value, d.Day.Value)
	}
	return t, nil
}

// Site is the reporting vaccination site. ID is the persistent key.
type Site struct {
	ID      Int    `json:"id" validate:"present,gt=0"`
	Name    string `json:"name"`
	ZipCode string `json:"zipCode"`
}

// VaccineEntry is one brand's counts for the reported day.
type VaccineEntry struct {
	Brand      string `json:"brand"`
	Total      Int    `json:"total" validate:"omitempty,min=0"`
	FirstShot  Int    `json:"firstShot" validate:"omitempty,min=0"`
	SecondShot Int    `json:"secondShot" validate:"omitempty,min=0"`
}

// Record is one parsed report.
type Record struct {
	Date     Date           `json:"date"`
	Site     Site           `json:"site"`
	Vaccines []VaccineEntry `json:"vaccines" validate:"dive"`
}

// recordValidator treats an absent Int as a missing value so that
// "present" and "omitempty" see presence rather than zero. "present" only
// fails on absence; a supplied zero is left to the range tags.
var recordValidator = newRecordValidator()

func newRecordValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if i, ok := field.Interface().(Int); ok && i.Valid {
			return i.Value
		}
		return nil
	}, Int{})
	_ = v.RegisterValidation("present", func(validator.FieldLevel) bool { return true })
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks that the record is usable: date and site id present, the
// date real, the site id positive, and any reported counts non-negative.
// The shot sums must also fit the INT columns they are stored in.
// Missing required fields report ErrCodeParseMissingField; everything else
// reports ErrCodeParseInvalidRecord.
func (r *Record) Validate() error {
	if err := recordValidator.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return types.NewAppError(types.ErrCodeParseInvalidRecord, "record validation failed", err)
		}
		fe := fieldErrs[0]
		field := fieldPath(fe.Namespace())
		if fe.Tag() == "present" {
			return types.NewAppErrorWithDetails(types.ErrCodeParseMissingField,
				fmt.Sprintf("missing required field %s", field), nil,
				map[string]any{"field": field})
		}
		return types.NewAppErrorWithDetails(types.ErrCodeParseInvalidRecord,
			fmt.Sprintf("field %s fails %s=%s", field, fe.Tag(), fe.Param()), nil,
			map[string]any{"field": field})
	}

	if _, err := r.Date.Time(); err != nil {
		return types.NewAppError(types.ErrCodeParseInvalidRecord, "invalid report date", err)
	}

	sums := ShotSums(r.Vaccines)
	for _, sum := range []struct {
		field string
		value int
	}{
		{"vaccines.firstShot", sums.FirstShot},
		{"vaccines.secondShot", sums.SecondShot},
	} {
		if sum.value > math.MaxInt32 {
			return types.NewAppErrorWithDetails(types.ErrCodeParseInvalidRecord,
				fmt.Sprintf("sum of %s exceeds %d", sum.field, math.MaxInt32), nil,
				map[string]any{"field": sum.field})
		}
	}
	return nil
}

// fieldPath strips the root type name from a validator namespace:
// "Record.site.id" -> "site.id".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
