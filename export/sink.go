package export

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
	"github.com/rs/zerolog/log"
)

// Sink stores a finished payload and returns where it went.
type Sink interface {
	Put(ctx context.Context, p *Payload) (string, error)
}

// FileSink writes payloads into a local directory. With Gzip set the file
// gets a .gz suffix and is compressed on the way out.
type FileSink struct {
	Dir      string
	Gzip     bool
	UsePgzip bool
}

func (s *FileSink) Put(_ context.Context, p *Payload) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.Dir, SafeName(p.Filename))
	if s.Gzip {
		path += ".gz"
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	var w io.WriteCloser = f
	if s.Gzip {
		w = newGzipWriter(f, s.UsePgzip)
	}
	if _, err := w.Write(p.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	log.Debug().Str("path", path).Int64("bytes", p.Size).Msg("export written")
	return path, nil
}

type writeCloseFlusher interface {
	io.WriteCloser
	Flush() error
}

// gzipWriter compresses into w and closes w along with itself.
type gzipWriter struct {
	w  io.WriteCloser
	gz writeCloseFlusher
}

func newGzipWriter(w io.WriteCloser, usePgzip bool) *gzipWriter {
	var gz writeCloseFlusher
	if usePgzip {
		gz = pgzip.NewWriter(w)
	} else {
		gz = gzip.NewWriter(w)
	}
	return &gzipWriter{w: w, gz: gz}
}

func (gw *gzipWriter) Write(p []byte) (int, error) {
	return gw.gz.Write(p)
}

func (gw *gzipWriter) Close() error {
	var globalErr error
	if err := gw.gz.Flush(); err != nil {
		globalErr = fmt.Errorf("error flushing gzip buffer: %w", err)
		log.Warn().Err(err).Msg("error flushing gzip buffer")
	}
	if err := gw.gz.Close(); err != nil {
		globalErr = fmt.Errorf("error closing gzip writer: %w", err)
		log.Warn().Err(err).Msg("error closing gzip writer")
	}
	if err := gw.w.Close(); err != nil {
		globalErr = fmt.Errorf("error closing export file: %w", err)
		log.Warn().Err(err).Msg("error closing export file")
	}
	return globalErr
}
