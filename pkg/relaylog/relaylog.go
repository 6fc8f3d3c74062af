// Package relaylog implements the hub's per-vertex relay log: an
// append-only, size-rotated, gzip-archived record of every frame a vertex
// worker relayed or dropped.
package relaylog

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/spacehauc/gshub/pkg/frame"
	"github.com/spacehauc/gshub/pkg/relay"
	"github.com/spacehauc/gshub/pkg/vertex"
)

// DefaultMaxBytes is the rotation threshold used when a Logger is created
// with a zero MaxBytes.
const DefaultMaxBytes = 256 << 20

// rotatingFile is an io.Writer over a single append-only file that rotates
// itself once it has written more than maxBytes, archiving the old file as
// gzip in the background. It mirrors the write-then-swap shape of
// zerologWriterLevel, but owns the underlying file instead of wrapping an
// arbitrary writer.
type rotatingFile struct {
	mu       sync.Mutex
	dir      string
	name     string
	maxBytes int64

	f    *os.File
	size int64
}

func newRotatingFile(dir, name string, maxBytes int64) (*rotatingFile, error) {
	rf := &rotatingFile{dir: dir, name: name, maxBytes: maxBytes}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) path() string {
	return filepath.Join(rf.dir, rf.name+".log")
}

func (rf *rotatingFile) open() error {
	f, err := os.OpenFile(rf.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("relaylog: open %s: %w", rf.path(), err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("relaylog: stat %s: %w", rf.path(), err)
	}
	rf.f = f
	rf.size = fi.Size()
	return nil
}

func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.maxBytes > 0 && rf.size+int64(len(p)) > rf.maxBytes {
		if err := rf.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := rf.f.Write(p)
	rf.size += int64(n)
	return n, err
}

// Rotate forces the active file to be closed, archived, and replaced,
// regardless of its current size. It is exported for HandleSIGHUP.
func (rf *rotatingFile) Rotate() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.rotateLocked()
}

func (rf *rotatingFile) rotateLocked() error {
	old := rf.f
	oldPath := rf.path()
	if err := old.Close(); err != nil {
		return fmt.Errorf("relaylog: close %s: %w", oldPath, err)
	}

	rotatedPath := fmt.Sprintf("%s.%d", oldPath, time.Now().UnixNano())
	if err := os.Rename(oldPath, rotatedPath); err != nil {
		return fmt.Errorf("relaylog: rename %s: %w", oldPath, err)
	}
	go archive(rotatedPath, rotatedPath+".gz")

	if err := rf.open(); err != nil {
		return err
	}
	return nil
}

// archive compresses src into dst and removes src, logging nothing itself:
// callers that care about failures should wrap this.
func archive(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Logger is the relay log for a single vertex: a zerolog.Logger backed by a
// rotatingFile, with one structured line per relay.Event.
type Logger struct {
	Vertex vertex.Vertex

	rf  *rotatingFile
	log zerolog.Logger
}

// New creates a Logger that writes "<vertex>.log" under dir, rotating at
// maxBytes (DefaultMaxBytes if zero).
func New(dir string, v vertex.Vertex, maxBytes int64) (*Logger, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	rf, err := newRotatingFile(dir, v.String(), maxBytes)
	if err != nil {
		return nil, err
	}
	return &Logger{
		Vertex: v,
		rf:     rf,
		log:    zerolog.New(rf).With().Timestamp().Str("vertex", v.String()).Logger(),
	}, nil
}

// Reopen forces the log file to rotate, the way HandleSIGHUP reopens the
// teacher's access/error log files.
func (l *Logger) Reopen() error {
	return l.rf.Rotate()
}

// Record writes one structured line per relay.Event, satisfying relay.Sink.
func (l *Logger) Record(e relay.Event) {
	ev := l.log.Log().
		Str("id", e.ID.String()).
		Str("result", string(e.Result)).
		Str("origin", e.Frame.Origin.String()).
		Str("destination", e.Frame.Destination.String()).
		Str("type", e.Frame.Type.String()).
		Uint16("payload_size", e.Frame.PayloadSize).
		Int("frame_size", frame.FrameSize).
		Str("payload_hex", hex.EncodeToString(e.Frame.Payload[:e.Frame.PayloadSize]))
	if e.Detail != "" {
		ev = ev.Str("detail", e.Detail)
	}
	ev.Msg("relay")
}
