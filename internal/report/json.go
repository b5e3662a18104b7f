package report

import (
	json "github.com/goccy/go-json"

	"vaxingest/internal/types"
)

// JSONParser reads the structured-text encoding:
//
//	{"date": {"month": 5, "day": 1, "year": 2021},
//	 "site": {"id": 7, "name": "Clinic A", "zipCode": "02139"},
//	 "vaccines": [{"brand": "Pfizer", "total": 100, "firstShot": 60, "secondShot": 40}]}
//
// Numeric fields may be JSON numbers or numeric strings.
type JSONParser struct{}

// Numeric fields stay raw until coerced so a bad value can name its path.
type jsonReport struct {
	Date struct {
		Month json.RawMessage `json:"month"`
		Day   json.RawMessage `json:"day"`
		Year  json.RawMessage `json:"year"`
	} `json:"date"`
	Site struct {
		ID      json.RawMessage `json:"id"`
		Name    string          `json:"name"`
		ZipCode string          `json:"zipCode"`
	} `json:"site"`
	Vaccines []jsonVaccine `json:"vaccines"`
}

type jsonVaccine struct {
	Brand      string          `json:"brand"`
	Total      json.RawMessage `json:"total"`
	FirstShot  json.RawMessage `json:"firstShot"`
	SecondShot json.RawMessage `json:"secondShot"`
}

type rawCount struct {
	field string
	raw   json.RawMessage
	dst   *Int
}

// Parse implements Parser.
func (JSONParser) Parse(data []byte) (*Record, error) {
	var doc jsonReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.NewAppError(types.ErrCodeParseMalformedText, "malformed JSON report", err)
	}

	rec := Record{
		Site: Site{Name: doc.Site.Name, ZipCode: doc.Site.ZipCode},
	}
	counts := []rawCount{
		{"date.month", doc.Date.Month, &rec.Date.Month},
		{"date.day", doc.Date.Day, &rec.Date.Day},
		{"date.year", doc.Date.Year, &rec.Date.Year},
		{"site.id", doc.Site.ID, &rec.Site.ID},
	}

	if doc.Vaccines != nil {
		rec.Vaccines = make([]VaccineEntry, len(doc.Vaccines))
	}
	for i, v := range doc.Vaccines {
		entry := &rec.Vaccines[i]
		entry.Brand = v.Brand
		prefix := vaccinePath(i)
		counts = append(counts,
			rawCount{prefix + "total", v.Total, &entry.Total},
			rawCount{prefix + "firstShot", v.FirstShot, &entry.FirstShot},
			rawCount{prefix + "secondShot", v.SecondShot, &entry.SecondShot},
		)
	}

	for _, c := range counts {
		n, err := jsonCount(c.field, c.raw)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}
