package report

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"vaxingest/internal/types"
)

// parseCount converts the text of a numeric field into a present Int.
// Surrounding whitespace is ignored; anything that is not a base-10 integer
// within the INT column range is rejected.
func parseCount(field, text string) (Int, error) {
	s := strings.TrimSpace(text)
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return Int{}, invalidNumber(field, text, err)
	}
	return IntOf(int(n)), nil
}

func invalidNumber(field, text string, err error) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeParseInvalidNumber,
		fmt.Sprintf("%s is not an integer: %q", field, text), err,
		map[string]any{"field": field})
}

// jsonCount coerces a raw JSON value into an Int. An absent value or null
// leaves the field absent. A JSON integer or a string holding one is
// accepted; fractions, exponents, booleans and non-numeric strings are
// rejected rather than truncated or defaulted.
func jsonCount(field string, raw []byte) (Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Int{}, nil
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return Int{}, invalidNumber(field, string(raw), err)
		}
	} else {
		text = string(raw)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return Int{}, invalidNumber(field, text, err)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return Int{}, invalidNumber(field, text, strconv.ErrRange)
	}
	return IntOf(int(n)), nil
}

// vaccinePath is the field prefix for the i-th vaccine entry.
func vaccinePath(i int) string {
	return fmt.Sprintf("vaccines[%d].", i)
}
