package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/result"
)

const ManifestName = "manifest.json"

// Entry is one named result inside an archive.
type Entry struct {
	Name   string
	Result *result.Result
}

// Manifest describes an archive's contents.
type Manifest struct {
	ID         string          `json:"export_id"`
	ExportedAt time.Time       `json:"export_timestamp"`
	Format     Format          `json:"export_format"`
	Objects    []ManifestEntry `json:"files_included"`
	Total      int             `json:"total_files"`
}

type ManifestEntry struct {
	Name     string `json:"name"`
	File     string `json:"file,omitempty"`
	Sheet    string `json:"sheet,omitempty"`
	Rows     int    `json:"rows"`
	Columns  int    `json:"columns"`
	Bytes    int64  `json:"bytes,omitempty"`
	Warnings int    `json:"warnings"`
}

// Archive packages several results in the order given. Excel produces one
// workbook with a sheet per entry and the manifest in the document
// properties; every other format produces a zip with one file per entry and
// a manifest.json. Any entry failing to serialize fails the whole archive.
func Archive(entries []Entry, f Format, opts Options) (*Payload, error) {
	var (
		p   *Payload
		err error
	)
	if f == Excel {
		p, err = excelArchive(entries, opts)
	} else {
		p, err = zipArchive(entries, f, opts)
	}
	if err == nil && opts.MaxBytes > 0 && p.Size > opts.MaxBytes {
		err = &dberr.SerializationError{Format: string(f), Err: fmt.Errorf("%w: archive is %d bytes", dberr.ErrPayloadTooLarge, p.Size)}
	}
	if err != nil {
		opts.Metrics.RecordExport(string(f), 0, err)
		log.Error().Err(err).Str("format", string(f)).Msg("archive failed")
		return nil, err
	}
	opts.Metrics.RecordExport(string(f), p.Size, nil)
	log.Debug().
		Str("format", string(f)).
		Int("entries", len(entries)).
		Int64("bytes", p.Size).
		Msg("archived")
	return p, nil
}

func newManifest(f Format, opts Options) Manifest {
	return Manifest{
		ID:         uuid.NewString(),
		ExportedAt: opts.timestamp().UTC(),
		Format:     f,
	}
}

func zipArchive(entries []Entry, f Format, opts Options) (*Payload, error) {
	serr := func(err error) error {
		return &dberr.SerializationError{Format: string(f), Err: err}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	manifest := newManifest(f, opts)
	files := uniqueNames{ManifestName: true}
	var warnings []dberr.Warning

	for _, e := range entries {
		file := files.claim(SafeName(e.Name), "."+f.Extension())
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     file,
			Method:   zip.Deflate,
			Modified: manifest.ExportedAt,
		})
		if err != nil {
			return nil, serr(err)
		}
		entryOpts := opts
		entryOpts.Name = e.Name
		entryOpts.MaxBytes = 0
		stats, err := write(w, e.Result, f, entryOpts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		warnings = append(warnings, subjectWarnings(e.Name, stats.Warnings)...)
		manifest.Objects = append(manifest.Objects, ManifestEntry{
			Name:     e.Name,
			File:     file,
			Rows:     stats.Rows,
			Columns:  stats.Columns,
			Bytes:    stats.Bytes,
			Warnings: len(stats.Warnings),
		})
	}
	manifest.Total = len(manifest.Objects)

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: ManifestName, Method: zip.Deflate, Modified: manifest.ExportedAt})
	if err != nil {
		return nil, serr(err)
	}
	enc := json.NewEncoder(mw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return nil, serr(err)
	}
	if err := zw.Close(); err != nil {
		return nil, serr(err)
	}

	return &Payload{
		Format:   f,
		Data:     buf.Bytes(),
		Rows:     totalRows(manifest),
		Size:     int64(buf.Len()),
		Filename: opts.basename() + ".zip",
		MIMEType: "application/zip",
		Warnings: warnings,
	}, nil
}

func excelArchive(entries []Entry, opts Options) (*Payload, error) {
	serr := func(err error) error {
		return &dberr.SerializationError{Format: string(Excel), Err: err}
	}

	var buf bytes.Buffer
	book := excelize.NewFile()
	enc := &excelEncoder{w: &buf, book: book}
	manifest := newManifest(Excel, opts)
	sheets := uniqueNames{}
	var warnings []dberr.Warning

	for _, e := range entries {
		if e.Result == nil || e.Result.Err() != nil {
			book.Close()
			return nil, serr(fmt.Errorf("%s: result unavailable", e.Name))
		}
		base := SheetName(e.Name)
		if base == "" {
			base = "Sheet"
		}
		sheet := sheets.claimSheet(base)
		if err := enc.addSheet(sheet); err != nil {
			book.Close()
			return nil, serr(err)
		}
		stats, err := encodeSheet(enc, e.Result, opts.MaxRows)
		if err != nil {
			book.Close()
			return nil, fmt.Errorf("%s: %w", e.Name, serr(err))
		}
		warnings = append(warnings, subjectWarnings(e.Name, stats.Warnings)...)
		manifest.Objects = append(manifest.Objects, ManifestEntry{
			Name:     e.Name,
			Sheet:    sheet,
			Rows:     stats.Rows,
			Columns:  stats.Columns,
			Warnings: len(stats.Warnings),
		})
	}
	manifest.Total = len(manifest.Objects)
	if enc.sheets == 0 {
		// an empty archive is still a valid workbook
		if err := enc.addSheet("Sheet1"); err != nil {
			book.Close()
			return nil, serr(err)
		}
	}

	desc, err := json.Marshal(manifest)
	if err != nil {
		book.Close()
		return nil, serr(err)
	}
	if err := book.SetDocProps(&excelize.DocProperties{
		Title:       "dbharbor export " + manifest.ID,
		Description: string(desc),
		Created:     manifest.ExportedAt.Format(time.RFC3339),
		Creator:     "dbharbor",
	}); err != nil {
		book.Close()
		return nil, serr(err)
	}
	if err := enc.finish(); err != nil {
		return nil, serr(err)
	}

	return &Payload{
		Format:   Excel,
		Data:     buf.Bytes(),
		Rows:     totalRows(manifest),
		Size:     int64(buf.Len()),
		Filename: opts.filename(Excel),
		MIMEType: Excel.MIMEType(),
		Warnings: warnings,
	}, nil
}

// encodeSheet writes one result into the current sheet without finishing
// the workbook.
func encodeSheet(enc *excelEncoder, res *result.Result, maxRows int) (*Stats, error) {
	return encode(sheetOnly{enc}, res, maxRows)
}

type sheetOnly struct {
	*excelEncoder
}

func (sheetOnly) finish() error { return nil }

func subjectWarnings(name string, ws []dberr.Warning) []dberr.Warning {
	out := make([]dberr.Warning, 0, len(ws))
	for _, w := range ws {
		if w.Subject == "" {
			w.Subject = name
		} else {
			w.Subject = name + "." + w.Subject
		}
		out = append(out, w)
	}
	return out
}

func totalRows(m Manifest) int {
	n := 0
	for _, o := range m.Objects {
		n += o.Rows
	}
	return n
}

// uniqueNames hands out names that do not collide with earlier ones.
type uniqueNames map[string]bool

func (u uniqueNames) claim(base, ext string) string {
	name := base + ext
	for i := 2; u[name]; i++ {
		name = base + "_" + strconv.Itoa(i) + ext
	}
	u[name] = true
	return name
}

// claimSheet dedupes case-insensitively and keeps the 31 character limit.
func (u uniqueNames) claimSheet(base string) string {
	name := base
	for i := 2; u[strings.ToLower(name)]; i++ {
		suffix := "_" + strconv.Itoa(i)
		r := []rune(base)
		if len(r)+len(suffix) > 31 {
			r = r[:31-len(suffix)]
		}
		name = string(r) + suffix
	}
	u[strings.ToLower(name)] = true
	return name
}
