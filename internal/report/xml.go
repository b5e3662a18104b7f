package report

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"

	"vaxingest/internal/types"
)

// XMLParser reads the structured-markup encoding:
//
//	<data month="5" day="1" year="2021">
//	  <site id="7"><name>Clinic A</name><zipCode>02139</zipCode></site>
//	  <vaccines>
//	    <brand name="Pfizer"><total>100</total><firstShot>60</firstShot><secondShot>40</secondShot></brand>
//	  </vaccines>
//	</data>
type XMLParser struct{}

type xmlReport struct {
	XMLName xml.Name   `xml:"data"`
	Month   *string    `xml:"month,attr"`
	Day     *string    `xml:"day,attr"`
	Year    *string    `xml:"year,attr"`
	Site    *xmlSite   `xml:"site"`
	Brands  []xmlBrand `xml:"vaccines>brand"`
}

type xmlSite struct {
	ID      *string `xml:"id,attr"`
	Name    *string `xml:"name"`
	ZipCode *string `xml:"zipCode"`
}

type xmlBrand struct {
	Name       string  `xml:"name,attr"`
	Total      *string `xml:"total"`
	FirstShot  *string `xml:"firstShot"`
	SecondShot *string `xml:"secondShot"`
}

// Parse implements Parser. Every attribute and child node is required;
// brand names are the only optional value.
func (XMLParser) Parse(data []byte) (*Record, error) {
	var doc xmlReport
	if err := decodeDocument(data, &doc); err != nil {
		return nil, types.NewAppError(types.ErrCodeParseMalformedMarkup, "malformed XML report", err)
	}

	var (
		rec Record
		err error
	)

	if rec.Date.Month, err = requiredCount("date.month", doc.Month); err != nil {
		return nil, err
	}
	if rec.Date.Day, err = requiredCount("date.day", doc.Day); err != nil {
		return nil, err
	}
	if rec.Date.Year, err = requiredCount("date.year", doc.Year); err != nil {
		return nil, err
	}

	if doc.Site == nil {
		return nil, missingField("site")
	}
	if rec.Site.ID, err = requiredCount("site.id", doc.Site.ID); err != nil {
		return nil, err
	}
	if doc.Site.Name == nil {
		return nil, missingField("site.name")
	}
	if doc.Site.ZipCode == nil {
		return nil, missingField("site.zipCode")
	}
	rec.Site.Name = *doc.Site.Name
	rec.Site.ZipCode = *doc.Site.ZipCode

	rec.Vaccines = make([]VaccineEntry, 0, len(doc.Brands))
	for i, b := range doc.Brands {
		entry := VaccineEntry{Brand: b.Name}
		prefix := vaccinePath(i)
		if entry.Total, err = requiredCount(prefix+"total", b.Total); err != nil {
			return nil, err
		}
		if entry.FirstShot, err = requiredCount(prefix+"firstShot", b.FirstShot); err != nil {
			return nil, err
		}
		if entry.SecondShot, err = requiredCount(prefix+"secondShot", b.SecondShot); err != nil {
			return nil, err
		}
		rec.Vaccines = append(rec.Vaccines, entry)
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// decodeDocument decodes the root element into v and then requires the rest
// of the input to be comments, processing instructions or whitespace. A
// declared non-UTF-8 encoding is transcoded.
func decodeDocument(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(v); err != nil {
		return err
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after document root", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return errors.New("unexpected text after document root")
			}
		}
	}
}

func requiredCount(field string, text *string) (Int, error) {
	if text == nil {
		return Int{}, missingField(field)
	}
	return parseCount(field, *text)
}

func missingField(field string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeParseMissingField,
		fmt.Sprintf("missing required field %s", field), nil,
		map[string]any{"field": field})
}
