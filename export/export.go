// Package export turns query results into CSV, JSON, Excel, XML and HTML
// documents and packages several of them into one archive.
//
// CSV, JSON, XML and HTML are written row by row, so memory stays bounded by
// one row plus the writer's buffer. Excel is the exception: the workbook
// must be finished before any byte of it can be written, so the whole file
// is built in memory first.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/metrics"
	"github.com/jadedragon942/dbharbor/result"
)

type Options struct {
	// Name is the base of the suggested filename and the Excel sheet name.
	Name string
	// MaxRows truncates the export with a warning. Zero means no limit.
	MaxRows int
	// MaxBytes aborts the export once the output grows past it. Zero means
	// no limit.
	MaxBytes int64
	// Timestamp stamps filenames and archive manifests. Zero means now.
	Timestamp time.Time
	Metrics   *metrics.Metrics
}

func (o Options) timestamp() time.Time {
	if o.Timestamp.IsZero() {
		return time.Now()
	}
	return o.Timestamp
}

func (o Options) basename() string {
	name := o.Name
	if name == "" {
		name = "export"
	}
	return SafeName(name) + "_" + o.timestamp().Format("20060102_150405")
}

func (o Options) filename(f Format) string {
	return o.basename() + "." + f.Extension()
}

// Stats describes what Write produced.
type Stats struct {
	Rows     int
	Columns  int
	Bytes    int64
	Warnings []dberr.Warning
}

// Payload is a serialized result ready to be handed to a sink or a
// download.
type Payload struct {
	Format   Format
	Data     []byte
	Rows     int
	Columns  int
	Size     int64
	Filename string
	MIMEType string
	Warnings []dberr.Warning
}

func (p *Payload) Reader() io.Reader {
	return bytes.NewReader(p.Data)
}

// Serialize renders res in memory.
func Serialize(res *result.Result, f Format, opts Options) (*Payload, error) {
	var buf bytes.Buffer
	stats, err := Write(&buf, res, f, opts)
	if err != nil {
		return nil, err
	}
	return &Payload{
		Format:   f,
		Data:     buf.Bytes(),
		Rows:     stats.Rows,
		Columns:  stats.Columns,
		Size:     stats.Bytes,
		Filename: opts.filename(f),
		MIMEType: f.MIMEType(),
		Warnings: stats.Warnings,
	}, nil
}

// Write streams res to w. A failed result, an output larger than MaxBytes
// and values the format cannot represent all return a SerializationError;
// whatever was already written to w is left as is.
func Write(w io.Writer, res *result.Result, f Format, opts Options) (*Stats, error) {
	stats, err := write(w, res, f, opts)
	size := int64(0)
	if stats != nil {
		size = stats.Bytes
	}
	opts.Metrics.RecordExport(string(f), size, err)
	if err != nil {
		log.Error().Err(err).Str("format", string(f)).Msg("export failed")
		return nil, err
	}
	for _, warn := range stats.Warnings {
		opts.Metrics.RecordWarning(warn.Code)
	}
	log.Debug().
		Str("format", string(f)).
		Int("rows", stats.Rows).
		Int64("bytes", stats.Bytes).
		Msg("exported")
	return stats, nil
}

func write(w io.Writer, res *result.Result, f Format, opts Options) (*Stats, error) {
	serr := func(err error) error {
		return &dberr.SerializationError{Format: string(f), Err: err}
	}
	if res == nil {
		return nil, serr(errors.New("no result"))
	}
	if res.Err() != nil {
		return nil, serr(fmt.Errorf("result carries an error: %w", res.Err()))
	}

	cw := &countingWriter{w: w, max: opts.MaxBytes}
	sheet := SheetName(opts.Name)
	if sheet == "" {
		sheet = "Sheet1"
	}
	enc, err := newEncoder(cw, f, sheet)
	if err != nil {
		return nil, serr(err)
	}
	stats, err := encode(enc, res, opts.MaxRows)
	if err != nil {
		if ee, ok := enc.(*excelEncoder); ok {
			_ = ee.book.Close()
		}
		return nil, serr(err)
	}
	stats.Bytes = cw.n
	return stats, nil
}

var errStop = errors.New("stop")

func encode(enc encoder, res *result.Result, maxRows int) (*Stats, error) {
	stats := &Stats{Columns: res.NumColumns(), Warnings: Validate(res)}
	if err := enc.header(res.ColumnNames()); err != nil {
		return nil, err
	}

	err := res.Each(func(i int, row []any) error {
		if maxRows > 0 && i >= maxRows {
			return errStop
		}
		if err := enc.row(row); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		stats.Rows++
		return nil
	})
	if errors.Is(err, errStop) {
		stats.Warnings = append(stats.Warnings, dberr.Warning{
			Code:    dberr.WarnTruncated,
			Message: fmt.Sprintf("export truncated to %d of %d rows", maxRows, res.RowCount()),
		})
	} else if err != nil {
		return nil, err
	}

	if err := enc.finish(); err != nil {
		return nil, err
	}
	return stats, nil
}

type countingWriter struct {
	w   io.Writer
	n   int64
	max int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.max > 0 && c.n+int64(len(p)) > c.max {
		return 0, fmt.Errorf("%w: over %d bytes", dberr.ErrPayloadTooLarge, c.max)
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// SafeName replaces characters that are unsafe in file and archive entry
// names.
func SafeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeNameChars, r) || r < 0x20 {
			return '_'
		}
		return r
	}, s)
}

// SheetName makes s usable as an Excel sheet name: at most 31 characters
// and none of []:*?/\.
func SheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, "'")
	if r := []rune(s); len(r) > 31 {
		s = string(r[:31])
	}
	return s
}
