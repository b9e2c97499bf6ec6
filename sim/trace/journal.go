package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// JournalVersion is the format version written into new journal headers.
const JournalVersion = "1.0.0"

// journalCompat is the range of header versions ReadJournal accepts.
const journalCompat = "^1.0"

// JournalHeader is the first line of every journal.
type JournalHeader struct {
	Version   string `json:"version"`
	RunID     string `json:"run_id"`
	Scenario  string `json:"scenario,omitempty"`
	Seed      int64  `json:"seed"`
	StartNs   int64  `json:"start_ns"`
	CreatedAt string `json:"created_at"`
}

// JournalWriter streams records as zstd-compressed JSON lines.
// Write errors are sticky: the first one stops further output and is
// returned by Err and Close.
type JournalWriter struct {
	header JournalHeader
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	count  int
	err    error
}

// CreateJournal creates (or truncates) path and writes header. A missing
// RunID is filled with a fresh UUID and a missing Version with JournalVersion.
func CreateJournal(path string, header JournalHeader) (*JournalWriter, error) {
	if header.Version == "" {
		header.Version = JournalVersion
	}
	if header.RunID == "" {
		header.RunID = uuid.NewString()
	}
	if header.CreatedAt == "" {
		header.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating journal encoder: %w", err)
	}
	jw := &JournalWriter{
		header: header,
		f:      f,
		enc:    enc,
		w:      bufio.NewWriter(enc),
	}
	jw.writeLine(header)
	if jw.err != nil {
		_ = jw.Close()
		return nil, jw.err
	}
	return jw, nil
}

// Header returns the header as written.
func (jw *JournalWriter) Header() JournalHeader { return jw.header }

// Count returns the number of records written so far.
func (jw *JournalWriter) Count() int { return jw.count }

// Record implements Recorder.
func (jw *JournalWriter) Record(r Record) {
	jw.writeLine(r)
	if jw.err == nil {
		jw.count++
	}
}

// Err returns the first write error, if any.
func (jw *JournalWriter) Err() error { return jw.err }

func (jw *JournalWriter) writeLine(v any) {
	if jw.err != nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		jw.err = fmt.Errorf("encoding journal line: %w", err)
		return
	}
	if _, err := jw.w.Write(b); err != nil {
		jw.err = fmt.Errorf("writing journal: %w", err)
		return
	}
	if err := jw.w.WriteByte('\n'); err != nil {
		jw.err = fmt.Errorf("writing journal: %w", err)
	}
}

// Close flushes and closes the journal and returns the first error seen.
func (jw *JournalWriter) Close() error {
	if jw.f == nil {
		return jw.err
	}
	if err := jw.w.Flush(); err != nil && jw.err == nil {
		jw.err = fmt.Errorf("flushing journal: %w", err)
	}
	if err := jw.enc.Close(); err != nil && jw.err == nil {
		jw.err = fmt.Errorf("closing journal encoder: %w", err)
	}
	if err := jw.f.Close(); err != nil && jw.err == nil {
		jw.err = fmt.Errorf("closing journal: %w", err)
	}
	jw.f = nil
	return jw.err
}

// CheckVersion returns an error unless v is a journal format version this
// build can read.
func CheckVersion(v string) error {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid journal version %q: %w", v, err)
	}
	c, err := semver.NewConstraint(journalCompat)
	if err != nil {
		return err
	}
	if !c.Check(ver) {
		return fmt.Errorf("journal version %s not supported (want %s)", v, journalCompat)
	}
	return nil
}

// ReadJournal decodes a journal written by JournalWriter.
func ReadJournal(path string) (JournalHeader, []Record, error) {
	var header JournalHeader
	f, err := os.Open(path)
	if err != nil {
		return header, nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return header, nil, fmt.Errorf("opening journal decoder: %w", err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return header, nil, fmt.Errorf("reading journal header: %w", err)
		}
		return header, nil, fmt.Errorf("journal %s is empty", path)
	}
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return header, nil, fmt.Errorf("parsing journal header: %w", err)
	}
	if err := CheckVersion(header.Version); err != nil {
		return header, nil, err
	}

	records := make([]Record, 0)
	line := 1
	for sc.Scan() {
		line++
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return header, nil, fmt.Errorf("parsing journal line %d: %w", line, err)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return header, nil, fmt.Errorf("reading journal: %w", err)
	}
	return header, records, nil
}
