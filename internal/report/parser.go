package report

import (
	"fmt"
	"strings"

	"vaxingest/internal/types"
)

// Parser turns a raw payload into a validated Record. Implementations never
// return a partial record: on error the record is nil.
type Parser interface {
	Parse(data []byte) (*Record, error)
}

// ParserFor selects the parser for a File-Type tag value. Matching is exact
// apart from surrounding whitespace; any other value is unsupported.
func ParserFor(fileType string) (Parser, error) {
	switch strings.TrimSpace(fileType) {
	case types.FileTypeXML:
		return XMLParser{}, nil
	case types.FileTypeJSON:
		return JSONParser{}, nil
	default:
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInputUnsupportedType,
			fmt.Sprintf("unsupported file type %q", fileType), nil,
			map[string]any{"file_type": fileType})
	}
}
