package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"engine/internal/schema"
	"engine/pkg/exception"
)

// PlaybackConfig controls journal playback.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// Speed paces playback by receive time. 0 replays as fast as possible,
	// 1 at recorded speed, 2 twice as fast.
	Speed float64
	// FromSeq skips records with a lower sequence number.
	FromSeq         uint64
	DisableChecksum bool
	MaxPayloadSize  int
}

// Clock allows deterministic playback control.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handler receives replayed records. The payload is only valid during the call.
type Handler func(header schema.MessageHeader, payload []byte) error

// Playback replays journal segments in file order.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = defaultFilePrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, clock: realClock{}}, nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	switch {
	case c.Dir == "":
		return fmt.Errorf("invalid playback config: Dir is empty")
	case c.Speed < 0:
		return fmt.Errorf("invalid playback config: Speed must be >= 0")
	case c.MaxPayloadSize < 0:
		return fmt.Errorf("invalid playback config: MaxPayloadSize must be >= 0")
	}
	return nil
}

// Run replays every record and returns the number handed to handler.
func (p *Playback) Run(ctx context.Context, handler Handler) (int, error) {
	if handler == nil {
		return 0, exception.ErrJournalNilHandler
	}
	files, err := p.Files()
	if err != nil {
		return 0, err
	}

	var (
		prevTS int64
		count  int
	)
	for _, path := range files {
		n, err := p.playFile(ctx, path, handler, &prevTS)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

// Files lists the journal segments in replay order.
func (p *Playback) Files() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, err
	}
	prefix := p.cfg.FilePrefix + "-"
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func (p *Playback) playFile(ctx context.Context, path string, handler Handler, prevTS *int64) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		header, payload, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return count, nil
			}
			return count, fmt.Errorf("read %s: %w", path, err)
		}
		if header.Seq < p.cfg.FromSeq {
			continue
		}

		if err := p.pace(ctx, header.TsRecv, prevTS); err != nil {
			return count, err
		}
		if err := handler(header, payload); err != nil {
			return count, err
		}
		count++
	}
}

func (p *Playback) pace(ctx context.Context, current int64, prevTS *int64) error {
	if p.cfg.Speed <= 0 || current <= 0 {
		return nil
	}
	if *prevTS > 0 {
		if delta := current - *prevTS; delta > 0 {
			if err := p.clock.Sleep(ctx, time.Duration(float64(delta)/p.cfg.Speed)); err != nil {
				return err
			}
		}
	}
	*prevTS = current
	return nil
}

// LastSeq returns the highest sequence number journaled in dir, or zero for
// an empty or missing directory. A torn record at the end of a segment is
// ignored, as a crash can leave one behind.
func LastSeq(dir, filePrefix string) (uint64, error) {
	p, err := NewPlayback(PlaybackConfig{Dir: dir, FilePrefix: filePrefix})
	if err != nil {
		return 0, err
	}
	files, err := p.Files()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	var last uint64
	for _, path := range files {
		seq, err := lastSeqInFile(path)
		if err != nil {
			return 0, err
		}
		if seq > last {
			last = seq
		}
	}
	return last, nil
}

func lastSeqInFile(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var last uint64
	reader := NewReader(file, ReaderOptions{})
	for {
		header, _, err := reader.Next()
		switch {
		case err == io.EOF, err == io.ErrUnexpectedEOF:
			return last, nil
		case err != nil:
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
		if header.Seq > last {
			last = header.Seq
		}
	}
}
