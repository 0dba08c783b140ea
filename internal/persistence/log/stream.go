package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Stream names one rotated JSONL log inside a run directory.
type Stream struct {
	Dir    string
	Prefix string
}

var (
	TickStream      = Stream{Dir: "events", Prefix: "events"}
	AuditStream     = Stream{Dir: "audit", Prefix: "audit"}
	TransformStream = Stream{Dir: "transforms", Prefix: "transforms"}
)

func (s Stream) Path(runDir string) string { return filepath.Join(runDir, s.Dir) }

// Files lists the stream's segments in runDir, oldest first.
func (s Stream) Files(runDir string) ([]string, error) {
	return ListFiles(s.Path(runDir), s.Prefix)
}

const segmentLayout = "2006-01-02-15"

// segment is one open hourly file.
type segment struct {
	key string
	f   *os.File
	enc *zstd.Encoder
	buf *bufio.Writer
}

func openSegment(path, key string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{key: key, f: f, enc: enc, buf: bufio.NewWriterSize(enc, 128*1024)}, nil
}

// close ends the zstd frame. Appending to the same hour later starts a new frame,
// which the reader decodes transparently.
func (s *segment) close() error {
	flushErr := s.buf.Flush()
	encErr := s.enc.Close()
	fileErr := s.f.Close()
	for _, err := range []error{flushErr, encErr, fileErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// JSONLZstdWriter appends JSON lines to hourly zstd segments of one stream.
// It is safe for concurrent use.
type JSONLZstdWriter struct {
	dir    string
	stream Stream
	now    func() time.Time

	mu    sync.Mutex
	seg   *segment
	lines uint64
}

func NewJSONLZstdWriter(runDir string, s Stream) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: s.Path(runDir), stream: s, now: time.Now}
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	seg, err := w.segmentFor(w.now().UTC().Format(segmentLayout))
	if err != nil {
		return err
	}
	if _, err := seg.buf.Write(b); err != nil {
		return err
	}
	w.lines++
	return seg.buf.Flush()
}

func (w *JSONLZstdWriter) segmentFor(key string) (*segment, error) {
	if w.seg != nil && w.seg.key == key {
		return w.seg, nil
	}
	if w.seg != nil {
		old := w.seg
		w.seg = nil
		if err := old.close(); err != nil {
			return nil, err
		}
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.stream.Prefix, key))
	seg, err := openSegment(path, key)
	if err != nil {
		return nil, err
	}
	w.seg = seg
	return seg, nil
}

// Lines reports how many lines were written since creation.
func (w *JSONLZstdWriter) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seg == nil {
		return nil
	}
	seg := w.seg
	w.seg = nil
	return seg.close()
}
