package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"engine/internal/schema"
	"engine/pkg/exception"
)

// Writer appends inbound messages to journal segments from a buffered queue.
// Append never blocks the caller; the file work happens on the writer goroutine.
type Writer struct {
	cfg Config
	ch  chan entry
	wg  sync.WaitGroup
	err atomic.Pointer[error]

	started atomic.Bool
	closed  atomic.Bool

	seg   *segment
	segID uint64
	buf   [recordHeaderSize + recordChecksumSize]byte
}

type entry struct {
	header  schema.MessageHeader
	payload []byte
}

type segment struct {
	file     *os.File
	w        *bufio.Writer
	size     int64
	openedAt time.Time
}

// NewWriter creates a writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan entry, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if w.started.Swap(true) {
		return exception.ErrJournalAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer after it has written everything queued so far.
func (w *Writer) Close() error {
	if !w.closed.Swap(true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if p := w.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Append enqueues a message. The payload must not be modified afterwards.
func (w *Writer) Append(header schema.MessageHeader, payload []byte) error {
	if w.closed.Load() {
		return exception.ErrJournalClosed
	}
	if !w.started.Load() {
		return exception.ErrJournalNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return exception.ErrJournalPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}

	select {
	case w.ch <- entry{header: header, payload: payload}:
		return nil
	default:
		return exception.ErrJournalQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var flushC, syncC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}
	defer func() {
		w.setErr(w.seg.close())
		w.seg = nil
	}()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case e, ok := <-w.ch:
			if !ok {
				return
			}
			if !w.write(e) {
				return
			}
		case <-flushC:
			if w.seg != nil && !w.check(w.seg.w.Flush()) {
				return
			}
		case <-syncC:
			if !w.check(w.seg.sync()) {
				return
			}
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case e, ok := <-w.ch:
			if !ok || !w.write(e) {
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) write(e entry) bool {
	now := time.Now().UTC()
	size := int64(recordHeaderSize + len(e.payload) + recordChecksumSize)
	if w.rotate(now, size) {
		if !w.check(w.seg.close()) {
			return false
		}
		seg, err := w.open(now)
		if !w.check(err) {
			return false
		}
		w.seg = seg
	}

	header := w.buf[:recordHeaderSize]
	encodeHeader(header, e.header, len(e.payload))
	sum := w.buf[recordHeaderSize:]
	binary.LittleEndian.PutUint32(sum, checksum(header, e.payload))

	if _, err := w.seg.w.Write(header); !w.check(err) {
		return false
	}
	if _, err := w.seg.w.Write(e.payload); !w.check(err) {
		return false
	}
	if _, err := w.seg.w.Write(sum); !w.check(err) {
		return false
	}
	w.seg.size += size
	return true
}

func (w *Writer) rotate(now time.Time, next int64) bool {
	switch {
	case w.seg == nil:
		return true
	case w.seg.size+next > w.cfg.SegmentMaxBytes:
		return true
	case w.cfg.SegmentMaxDuration > 0 && now.Sub(w.seg.openedAt) >= w.cfg.SegmentMaxDuration:
		return true
	}
	return false
}

func (w *Writer) open(now time.Time) (*segment, error) {
	ts := now.Format("20060102-150405")
	for {
		w.segID++
		name := fmt.Sprintf("%s-%s-%06d%s", w.cfg.FilePrefix, ts, w.segID, fileExt)
		file, err := os.OpenFile(filepath.Join(w.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return nil, err
		}
		return &segment{
			file:     file,
			w:        bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

// check records err and reports whether the writer can go on.
func (w *Writer) check(err error) bool {
	w.setErr(err)
	return err == nil
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	w.err.CompareAndSwap(nil, &err)
}

func (s *segment) sync() error {
	if s == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	if err := s.sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
