package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/hids/agent/internal/event"
)

// Tailer reads new lines appended to a fixed set of log files since the
// previous poll. One Tailer instance owns the offset store; Collect is not
// safe for concurrent use but the scheduler runs it from a single worker.
type Tailer struct {
	sources map[string]string // source name -> file path
	offsets *OffsetStore
	logger  *slog.Logger
}

// NewTailer builds a Tailer over the given source name → path map.
func NewTailer(sources map[string]string, offsets *OffsetStore, logger *slog.Logger) *Tailer {
	return &Tailer{
		sources: sources,
		offsets: offsets,
		logger:  logger,
	}
}

// Collect reads every monitored file from its stored offset to EOF and
// returns the new lines, tagged by source. The offset is advanced past
// everything read, including a partial trailing line: sources are
// line-append-only in practice, and a torn line fails parsing and is
// dropped rather than re-read.
//
// Rotation is detected per file: when the stored offset exceeds the current
// file size the file was truncated or replaced, and reading restarts at 0.
// A missing file is skipped silently; files appear and disappear with the
// services that write them.
func (t *Tailer) Collect() ([]event.RawLine, error) {
	var lines []event.RawLine
	var errs []error

	for source, path := range t.sources {
		got, err := t.collectFile(source, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		lines = append(lines, got...)
	}

	if err := t.offsets.Save(); err != nil {
		errs = append(errs, err)
	}
	return lines, errors.Join(errs...)
}

func (t *Tailer) collectFile(source, path string) ([]event.RawLine, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("logtail: open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("logtail: stat %q: %w", path, err)
	}

	offset := t.offsets.Get(path)
	if offset > info.Size() {
		t.logger.Info("log rotation detected, restarting from beginning",
			slog.String("source", source),
			slog.String("path", path),
			slog.Int64("stored_offset", offset),
			slog.Int64("size", info.Size()))
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("logtail: seek %q: %w", path, err)
	}

	var lines []event.RawLine
	read := offset
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		read += int64(len(line))
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			lines = append(lines, event.RawLine{Source: source, Text: text})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("logtail: read %q: %w", path, err)
		}
	}

	t.offsets.Set(path, read)
	return lines, nil
}
