package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Entry is one line of a trace file: a record tagged with its kind.
type Entry struct {
	Kind     string          `json:"kind"` // "decision", "delivery" or "stream"
	Decision *DecisionRecord `json:"decision,omitempty"`
	Delivery *DeliveryRecord `json:"delivery,omitempty"`
	Stream   *StreamRecord   `json:"stream,omitempty"`
}

// Writer appends trace entries to a zstd-compressed JSONL stream. Safe for
// concurrent use by the ranks of one in-process group.
type Writer struct {
	mu  sync.Mutex
	c   io.Closer // underlying file, nil when writing to a caller-owned stream
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewWriter wraps out. Closing the Writer flushes the compressor but does not
// close out.
func NewWriter(out io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("trace writer: %w", err)
	}
	return &Writer{enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}, nil
}

// CreateFile creates (or truncates) path and returns a Writer that owns it.
func CreateFile(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.c = f
	return w, nil
}

// Write appends one entry.
func (w *Writer) Write(e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding trace entry: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// WriteTrace appends every record of rt in decision, delivery, stream order.
func (w *Writer) WriteTrace(rt *RenderTrace) error {
	if rt == nil {
		return nil
	}
	for i := range rt.Decisions {
		if err := w.Write(Entry{Kind: "decision", Decision: &rt.Decisions[i]}); err != nil {
			return err
		}
	}
	for i := range rt.Deliveries {
		if err := w.Write(Entry{Kind: "delivery", Delivery: &rt.Deliveries[i]}); err != nil {
			return err
		}
	}
	for i := range rt.Streams {
		if err := w.Write(Entry{Kind: "stream", Stream: &rt.Streams[i]}); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and finishes the zstd frame, then closes the file if the
// Writer owns one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	if w.w != nil {
		firstErr = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		if err := w.enc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.enc = nil
	}
	if w.c != nil {
		if err := w.c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.c = nil
	}
	return firstErr
}

// ReadEntries decodes every entry of a stream written by Writer.
func ReadEntries(in io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("trace reader: %w", err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	var out []Entry
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decoding trace entry %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	return out, nil
}
