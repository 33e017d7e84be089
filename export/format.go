package export

import (
	"fmt"
	"strings"
)

type Format string

const (
	CSV   Format = "csv"
	JSON  Format = "json"
	Excel Format = "excel"
	XML   Format = "xml"
	HTML  Format = "html"
)

// Formats lists every supported format in a stable order.
var Formats = []Format{CSV, JSON, Excel, XML, HTML}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "excel", "xlsx":
		return Excel, nil
	case "xml":
		return XML, nil
	case "html", "htm":
		return HTML, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) Extension() string {
	if f == Excel {
		return "xlsx"
	}
	return string(f)
}

func (f Format) MIMEType() string {
	switch f {
	case CSV:
		return "text/csv"
	case JSON:
		return "application/json"
	case Excel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case XML:
		return "application/xml"
	case HTML:
		return "text/html"
	}
	return "application/octet-stream"
}

// Streaming reports whether the format is written row by row. Excel needs
// the whole workbook before anything can be written out.
func (f Format) Streaming() bool {
	return f != Excel
}
