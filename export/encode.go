package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/jadedragon942/dbharbor/result"
)

// ExcelMaxRows is the sheet row limit, header included.
const ExcelMaxRows = 1048576

var errNonFinite = errors.New("non-finite number")

// encoder writes one result. header is called once, then row for every
// row, then finish.
type encoder interface {
	header(names []string) error
	row(values []any) error
	finish() error
}

func newEncoder(w io.Writer, f Format, sheet string) (encoder, error) {
	switch f {
	case CSV:
		return &csvEncoder{out: w, w: csv.NewWriter(w)}, nil
	case JSON:
		return &jsonEncoder{w: w}, nil
	case XML:
		return &xmlEncoder{w: w}, nil
	case HTML:
		return &htmlEncoder{w: w}, nil
	case Excel:
		book := excelize.NewFile()
		enc := &excelEncoder{w: w, book: book}
		if err := enc.addSheet(sheet); err != nil {
			return nil, err
		}
		return enc, nil
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}

type csvEncoder struct {
	out io.Writer
	w   *csv.Writer
	buf []string
}

func (e *csvEncoder) header(names []string) error {
	return e.write(names)
}

func (e *csvEncoder) row(values []any) error {
	e.buf = e.buf[:0]
	for _, v := range values {
		e.buf = append(e.buf, result.Stringify(v))
	}
	return e.write(e.buf)
}

// write quotes a record made of one empty field. csv.Writer leaves it as a
// blank line, which readers skip.
func (e *csvEncoder) write(record []string) error {
	if len(record) != 1 || record[0] != "" {
		return e.w.Write(record)
	}
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(e.out, "\"\"\n")
	return err
}

func (e *csvEncoder) finish() error {
	e.w.Flush()
	return e.w.Error()
}

// jsonEncoder writes an array of objects whose keys keep column order.
type jsonEncoder struct {
	w    io.Writer
	keys [][]byte
	rows int
	line bytes.Buffer
}

func (e *jsonEncoder) header(names []string) error {
	for _, n := range names {
		k, err := json.Marshal(n)
		if err != nil {
			return err
		}
		e.keys = append(e.keys, k)
	}
	_, err := io.WriteString(e.w, "[")
	return err
}

func (e *jsonEncoder) row(values []any) error {
	e.line.Reset()
	if e.rows > 0 {
		e.line.WriteByte(',')
	}
	e.line.WriteString("\n  {")
	for i, v := range values {
		if i > 0 {
			e.line.WriteByte(',')
		}
		e.line.Write(e.keys[i])
		e.line.WriteByte(':')
		raw, err := jsonValue(v)
		if err != nil {
			return fmt.Errorf("column %s: %w", e.keys[i], err)
		}
		e.line.Write(raw)
	}
	e.line.WriteByte('}')
	e.rows++
	_, err := e.w.Write(e.line.Bytes())
	return err
}

func (e *jsonEncoder) finish() error {
	end := "]"
	if e.rows > 0 {
		end = "\n]"
	}
	_, err := io.WriteString(e.w, end)
	return err
}

func jsonValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte("null"), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %v", errNonFinite, x)
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("%w: %v", errNonFinite, x)
		}
	case decimal.Decimal:
		return []byte(x.String()), nil
	case []byte:
		return json.Marshal(result.Stringify(x))
	case time.Time:
		return json.Marshal(x.Format(time.RFC3339Nano))
	}
	return json.Marshal(v)
}

type xmlEncoder struct {
	w     io.Writer
	names []string
	line  bytes.Buffer
}

func (e *xmlEncoder) header(names []string) error {
	for _, n := range names {
		e.names = append(e.names, xmlName(n))
	}
	_, err := io.WriteString(e.w, xml.Header+"<data>")
	return err
}

func (e *xmlEncoder) row(values []any) error {
	e.line.Reset()
	e.line.WriteString("\n  <record>")
	for i, v := range values {
		name := e.names[i]
		if v == nil {
			e.line.WriteString("<" + name + "/>")
			continue
		}
		e.line.WriteString("<" + name + ">")
		if err := xml.EscapeText(&e.line, []byte(result.Stringify(v))); err != nil {
			return err
		}
		e.line.WriteString("</" + name + ">")
	}
	e.line.WriteString("</record>")
	_, err := e.w.Write(e.line.Bytes())
	return err
}

func (e *xmlEncoder) finish() error {
	_, err := io.WriteString(e.w, "\n</data>\n")
	return err
}

// xmlName turns a column name into a valid element name.
func xmlName(s string) string {
	var b strings.Builder
	for i, r := range s {
		ok := unicode.IsLetter(r) || r == '_' ||
			(i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'))
		if ok {
			b.WriteRune(r)
		} else if i == 0 && (unicode.IsDigit(r) || r == '-' || r == '.') {
			b.WriteString("_")
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

type htmlEncoder struct {
	w    io.Writer
	line bytes.Buffer
}

func (e *htmlEncoder) header(names []string) error {
	e.line.Reset()
	e.line.WriteString(`<table id="data-table" class="table table-striped">` + "\n<thead>\n<tr>")
	for _, n := range names {
		e.line.WriteString("<th>" + html.EscapeString(n) + "</th>")
	}
	e.line.WriteString("</tr>\n</thead>\n<tbody>\n")
	_, err := e.w.Write(e.line.Bytes())
	return err
}

func (e *htmlEncoder) row(values []any) error {
	e.line.Reset()
	e.line.WriteString("<tr>")
	for _, v := range values {
		e.line.WriteString("<td>" + html.EscapeString(result.Stringify(v)) + "</td>")
	}
	e.line.WriteString("</tr>\n")
	_, err := e.w.Write(e.line.Bytes())
	return err
}

func (e *htmlEncoder) finish() error {
	_, err := io.WriteString(e.w, "</tbody>\n</table>\n")
	return err
}

// excelEncoder streams rows into an in-memory workbook and writes the
// finished file on finish. Archive adds one sheet per table through
// addSheet.
type excelEncoder struct {
	w      io.Writer
	book   *excelize.File
	stream *excelize.StreamWriter
	sheets int
	next   int
	cells  []any
}

func (e *excelEncoder) addSheet(name string) error {
	if e.stream != nil {
		if err := e.stream.Flush(); err != nil {
			return err
		}
	}
	if e.sheets == 0 {
		// a new workbook starts with one default sheet
		if first := e.book.GetSheetName(0); first != name {
			if err := e.book.SetSheetName(first, name); err != nil {
				return err
			}
		}
	} else if _, err := e.book.NewSheet(name); err != nil {
		return err
	}
	e.sheets++
	sw, err := e.book.NewStreamWriter(name)
	if err != nil {
		return err
	}
	e.stream = sw
	e.next = 1
	return nil
}

func (e *excelEncoder) header(names []string) error {
	cells := make([]any, len(names))
	for i, n := range names {
		cells[i] = n
	}
	return e.setRow(cells)
}

func (e *excelEncoder) row(values []any) error {
	if e.next > ExcelMaxRows {
		return fmt.Errorf("sheet exceeds %d rows", ExcelMaxRows)
	}
	e.cells = e.cells[:0]
	for _, v := range values {
		c, err := excelValue(v)
		if err != nil {
			return err
		}
		e.cells = append(e.cells, c)
	}
	return e.setRow(e.cells)
}

func (e *excelEncoder) setRow(cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, e.next)
	if err != nil {
		return err
	}
	if err := e.stream.SetRow(cell, cells); err != nil {
		return err
	}
	e.next++
	return nil
}

func (e *excelEncoder) finish() error {
	defer e.book.Close()
	if err := e.stream.Flush(); err != nil {
		return err
	}
	_, err := e.book.WriteTo(e.w)
	return err
}

func excelValue(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %v", errNonFinite, x)
		}
	case decimal.Decimal:
		return x.InexactFloat64(), nil
	case []byte:
		return result.Stringify(x), nil
	}
	return v, nil
}
