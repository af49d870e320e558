// Package tail provides an incremental, rotation-aware line reader over a
// single growing log file. The reader only tracks byte offsets; persisting
// them between processes is the caller's job.
package tail

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"loottrack/internal/log"
)

const (
	// maxChunk bounds how much is read per call so one giant backlog
	// cannot stall a polling cycle.
	maxChunk = 4 * 1024 * 1024

	// maxPartial bounds the buffered tail of an unterminated line.
	maxPartial = 1024 * 1024

	// maxOffset guards against corrupted checkpoints; no client log
	// reasonably exceeds 1 TiB.
	maxOffset = 1 << 40
)

// Reader incrementally reads complete lines from one file.
type Reader struct {
	path   string
	offset int64
	size   int64 // file size observed on the last successful read

	// partial buffers the raw bytes of a trailing unterminated line, so
	// Mark can map it back to a file offset.
	partial []byte

	decoder *encoding.Decoder // nil when the log is already UTF-8
}

// NewReader creates a reader for the given file. Encoding may be "utf-8"
// (or empty) or "windows-1252".
func NewReader(path string, logEncoding string) *Reader {
	r := &Reader{path: path}
	if logEncoding == "windows-1252" {
		r.decoder = charmap.Windows1252.NewDecoder()
	}
	return r
}

// FileIdentity returns the identity recorded in checkpoints for this file.
func (r *Reader) FileIdentity() string {
	if abs, err := filepath.Abs(r.path); err == nil {
		return abs
	}
	return r.path
}

// Position returns the current byte offset and the last observed file size.
func (r *Reader) Position() (offset int64, size int64) {
	return r.offset, r.size
}

// Mark returns the file offset of the first byte not yet returned as part
// of a complete line. Rewinding to it replays the buffered remainder.
func (r *Reader) Mark() int64 {
	return r.offset - int64(len(r.partial))
}

// Rewind moves the reader back to a mark captured earlier so a failed
// batch can be re-read. A mark that no longer fits the current offsets
// (the file rotated in between) is ignored.
func (r *Reader) Rewind(mark int64) {
	if mark < 0 || mark > r.offset {
		return
	}
	r.offset = mark
	r.partial = nil
}

// SetPosition restores a checkpointed offset. Negative or absurd offsets
// are clamped instead of propagated; the rotation check at the next read
// handles an offset beyond the current file size.
func (r *Reader) SetPosition(offset int64, knownSize int64) {
	if offset < 0 {
		log.Warn("Clamping negative checkpoint offset", "offset", offset)
		offset = 0
	}
	if offset > maxOffset {
		log.Warn("Clamping absurd checkpoint offset", "offset", offset)
		offset = 0
	}
	r.offset = offset
	r.size = knownSize
	r.partial = nil
}

// SeekToEnd positions the reader at the current end of the file so already
// written history is not replayed. Used on first-ever attach when no
// checkpoint exists. A missing file leaves the reader at offset 0.
func (r *Reader) SeekToEnd() {
	fi, err := os.Stat(r.path)
	if err != nil {
		r.offset = 0
		r.size = 0
		return
	}
	r.offset = fi.Size()
	r.size = fi.Size()
	r.partial = nil
}

// ReadNewLines returns all complete lines appended since the last call.
// A trailing unterminated line is buffered until its terminator arrives.
// Transient failures (missing or locked file) yield no lines rather than
// an error; rotation or truncation resets the reader to offset 0.
func (r *Reader) ReadNewLines() []string {
	f, err := os.Open(r.path)
	if err != nil {
		// File temporarily missing or locked; treat as no new data.
		return nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil
	}

	if fi.Size() < r.offset {
		log.Info("Log file shrank, assuming rotation",
			"path", r.path, "size", fi.Size(), "offset", r.offset)
		r.offset = 0
		r.partial = nil
	}
	r.size = fi.Size()

	if fi.Size() == r.offset {
		return nil
	}

	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(f, maxChunk))
	if len(data) == 0 {
		if err != nil {
			log.Debug("Transient read failure", "path", r.path, "error", err)
		}
		return nil
	}
	r.offset += int64(len(data))

	return r.splitLines(data)
}

// splitLines appends raw data to the buffered partial line and returns
// every complete line found, keeping any unterminated remainder. Lines
// are split before decoding so the remainder stays in file bytes; the
// newline byte is identical in both supported encodings.
func (r *Reader) splitLines(data []byte) []string {
	buf := append(r.partial, data...)

	var lines []string
	start := 0
	for i := 0; i < len(buf); i++ {
		if buf[i] == '\n' {
			lines = append(lines, r.decodeLine(buf[start:i]))
			start = i + 1
		}
	}

	remainder := buf[start:]
	if len(remainder) > maxPartial {
		log.Warn("Discarding oversized unterminated line",
			"path", r.path, "bytes", len(remainder))
		remainder = nil
	}
	// Copy so the next read's append cannot clobber returned strings.
	r.partial = append([]byte(nil), remainder...)

	return lines
}

func (r *Reader) decodeLine(raw []byte) string {
	if r.decoder != nil {
		if decoded, err := r.decoder.Bytes(raw); err == nil {
			raw = decoded
		}
	}
	return strings.TrimSuffix(string(raw), "\r")
}
