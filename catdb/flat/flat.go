// Package flat keeps append-only gzipped NDJSON archives of the raw
// activities fetched from Strava, one file per athlete, so that a store
// can be rebuilt with `stravad import` without calling Strava again.
package flat

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rotblauer/stravad/conceptual"
)

const (
	AthletesDir           = "athletes"
	RawActivitiesFileName = "activities.ndjson.gz"
)

type Flat struct {
	// path is the directory for flat file storage.
	// It includes the root directory.
	path string
}

func NewFlatWithRoot(root string) *Flat {
	root = filepath.Clean(root)
	if !filepath.IsAbs(root) {
		root, _ = filepath.Abs(root)
	}
	return &Flat{path: root}
}

// ForAthlete returns the athlete's archive directory. f is not modified.
func (f *Flat) ForAthlete(athleteID conceptual.AthleteID) *Flat {
	return &Flat{path: filepath.Join(f.path, AthletesDir, athleteID.String())}
}

func (f *Flat) Path() string {
	return f.path
}

func (f *Flat) NamedGZWriter(name string, config *GZFileWriterConfig) (*GZFileWriter, error) {
	if config == nil {
		config = DefaultGZFileWriterConfig()
	}
	return NewFlatGZWriter(filepath.Join(f.path, name), config)
}

func (f *Flat) NamedGZReader(name string) (*GZFileReader, error) {
	return NewFlatGZReader(filepath.Join(f.path, name))
}

// AppendJSONLines appends each value as one JSON line to the named archive.
// Every call adds a gzip member; readers see one continuous stream.
func AppendJSONLines[T any](f *Flat, name string, values []T) error {
	if len(values) == 0 {
		return nil
	}
	w, err := f.NamedGZWriter(name, nil)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w.Writer())
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			_ = w.Close()
			return fmt.Errorf("archive %s: %w", w.Path(), err)
		}
	}
	return w.Close()
}

type GZFileWriter struct {
	f   *os.File
	gzw *gzip.Writer
}

type GZFileWriterConfig struct {
	CompressionLevel int
	Flag             int
	FilePerm         os.FileMode
	DirPerm          os.FileMode
}

func DefaultGZFileWriterConfig() *GZFileWriterConfig {
	return &GZFileWriterConfig{
		CompressionLevel: gzip.BestCompression,
		Flag:             os.O_WRONLY | os.O_APPEND | os.O_CREATE,
		FilePerm:         0660,
		DirPerm:          0770,
	}
}

// NewFlatGZWriter opens path for appending and takes an exclusive lock on it
// until Close.
func NewFlatGZWriter(path string, config *GZFileWriterConfig) (*GZFileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), config.DirPerm); err != nil {
		return nil, err
	}
	fi, err := os.OpenFile(path, config.Flag, config.FilePerm)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(fi.Fd()), syscall.LOCK_EX); err != nil {
		_ = fi.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	gzw, err := gzip.NewWriterLevel(fi, config.CompressionLevel)
	if err != nil {
		_ = fi.Close()
		return nil, err
	}
	return &GZFileWriter{f: fi, gzw: gzw}, nil
}

func (g *GZFileWriter) Writer() *gzip.Writer {
	return g.gzw
}

// Close flushes the gzip member, syncs and unlocks the file.
func (g *GZFileWriter) Close() error {
	defer g.f.Close()
	if err := g.gzw.Close(); err != nil {
		return err
	}
	if err := g.f.Sync(); err != nil {
		return err
	}
	return syscall.Flock(int(g.f.Fd()), syscall.LOCK_UN)
}

func (g *GZFileWriter) Path() string {
	return g.f.Name()
}

type GZFileReader struct {
	f      *os.File
	gzr    *gzip.Reader
	closed bool
}

// NewFlatGZReader opens path and takes a shared lock on it until Close.
func NewFlatGZReader(path string) (*GZFileReader, error) {
	fi, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(fi.Fd()), syscall.LOCK_SH); err != nil {
		_ = fi.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	gzr, err := gzip.NewReader(fi)
	if err != nil {
		_ = fi.Close()
		return nil, err
	}
	return &GZFileReader{f: fi, gzr: gzr}, nil
}

func (g *GZFileReader) Reader() *gzip.Reader {
	return g.gzr
}

func (g *GZFileReader) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	defer g.f.Close()
	if err := g.gzr.Close(); err != nil {
		return err
	}
	return syscall.Flock(int(g.f.Fd()), syscall.LOCK_UN)
}
