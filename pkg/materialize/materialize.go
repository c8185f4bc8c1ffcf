// Package materialize writes run outputs under a request-scoped directory.
// A file is never observable at its final name while it is being written:
// fixed-name snapshots go through a temporary file and a rename, and
// uniquely named files are created exclusively.
package materialize

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	edaerrors "github.com/visilake/edaproc/pkg/errors"
)

// Materializer owns the output directory of one request.
type Materializer struct {
	requestID string
	dir       string
}

// New returns a Materializer for <root>/<requestID>. The request id becomes
// a path segment, so separators and dot segments are rejected.
func New(root, requestID string) (*Materializer, error) {
	if requestID == "" || requestID == "." || requestID == ".." ||
		strings.ContainsAny(requestID, `/\`) || strings.ContainsRune(requestID, 0) {
		return nil, edaerrors.Newf(edaerrors.CodeUsage, "request id %q cannot name an output directory", requestID)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, edaerrors.Write(err, root)
	}
	return &Materializer{requestID: requestID, dir: filepath.Join(absRoot, requestID)}, nil
}

// Dir returns the absolute request directory.
func (m *Materializer) Dir() string {
	return m.dir
}

// Path returns the absolute path of name inside the request directory.
func (m *Materializer) Path(name string) string {
	return filepath.Join(m.dir, name)
}

// CSVName is the fixed name of the row snapshot.
func (m *Materializer) CSVName() string {
	return m.requestID + ".csv"
}

// ParquetName is the fixed name of the columnar snapshot.
func (m *Materializer) ParquetName() string {
	return m.requestID + "-data.parquet"
}

// ReportPrefix is the leading part of every report file name.
func (m *Materializer) ReportPrefix() string {
	return m.requestID + "-eda-"
}

// EnsureDir creates the request directory. An existing directory is fine.
func (m *Materializer) EnsureDir() error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return edaerrors.Write(err, m.dir)
	}
	return nil
}

// WriteFile writes a fixed-name file. Content goes to a uniquely named hidden
// file in the same directory, which is synced and then renamed onto name, so
// concurrent runs never share an in-progress file. On failure the temporary
// file is removed and the final path is left as it was.
func (m *Materializer) WriteFile(name string, write func(io.Writer) error) (string, error) {
	if err := m.EnsureDir(); err != nil {
		return "", err
	}
	final := m.Path(name)

	f, err := os.CreateTemp(m.dir, "."+name+".*.tmp")
	if err != nil {
		return "", edaerrors.Write(err, final)
	}
	tmp := f.Name()

	if err := fill(f, write); err != nil {
		os.Remove(tmp)
		return "", edaerrors.Write(err, final)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return "", edaerrors.Write(err, final)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", edaerrors.Write(err, final)
	}
	return final, nil
}

// WriteUnique creates <prefix><random><suffix> exclusively and writes it.
// The file name is the uniqueness token, so two runs for the same request
// never collide. On failure the file is removed so no caller can mistake it
// for a finished one.
func (m *Materializer) WriteUnique(prefix, suffix string, write func(io.Writer) error) (string, error) {
	if err := m.EnsureDir(); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(m.dir, prefix+"*"+suffix)
	if err != nil {
		return "", edaerrors.Write(err, m.Path(prefix+"*"+suffix))
	}
	path := f.Name()

	if err := fill(f, write); err != nil {
		os.Remove(path)
		return "", edaerrors.Write(err, path)
	}
	if err := os.Chmod(path, 0644); err != nil {
		os.Remove(path)
		return "", edaerrors.Write(err, path)
	}
	return path, nil
}

// fill runs write against f through a buffer, then flushes, syncs and closes
// f. f is closed on every path.
func fill(f *os.File, write func(io.Writer) error) error {
	bw := bufio.NewWriterSize(f, 256*1024)
	if err := write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync: %w", err)
	}
	return f.Close()
}
