// Package journal implements the Active-Message Journal (spec §4.G): a
// per-device, line-delimited JSON file that is the authoritative view
// of "what is showing now" for late-joining readers such as the CGI
// query endpoint (spec §1). Each line is one internal/appliance.Message
// object, matching the wire body the dispatcher already sent.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/evoerr"
	"github.com/messagenet/evodispatch/internal/metrics"
)

const (
	lockGracePeriod = 5 * time.Second
	lockPollDelay   = 50 * time.Millisecond
)

// Journal manages the active-message files for every device under a
// shared state directory.
type Journal struct {
	dir string
}

// New creates a Journal rooted at dir, creating the directory if
// necessary.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal dir %s: %w", dir, evoerr.ErrJournalIO)
	}
	return &Journal{dir: dir}, nil
}

func (j *Journal) path(deviceRecno int64) string {
	return filepath.Join(j.dir, fmt.Sprintf("evolutionActiveMsgs.%d.json", deviceRecno))
}

func (j *Journal) readLockPath(deviceRecno int64) string {
	return j.path(deviceRecno) + ".readlock"
}

func (j *Journal) writeLockPath(deviceRecno int64) string {
	return j.path(deviceRecno) + ".writelock"
}

// Append adds msg to the device's journal unless a structurally-equal
// line (ignoring SignSeqNum and LaunchDTSec) already exists (spec §4.G,
// §9 "active-message equality key"). If the write-in-progress advisory
// flag is held past the 5-second grace period, the append is skipped
// and logged rather than retried indefinitely.
func (j *Journal) Append(ctx context.Context, deviceRecno int64, msg appliance.Message) error {
	release, err := j.acquireWriteLock(ctx, deviceRecno)
	if err != nil {
		metrics.JournalAppendsTotal.WithLabelValues("busy").Inc()
		return err
	}
	defer release()

	lines, err := j.readLines(deviceRecno)
	if err != nil {
		metrics.JournalAppendsTotal.WithLabelValues("error").Inc()
		return err
	}

	key, err := json.Marshal(msg.JournalEqualityKey())
	if err != nil {
		metrics.JournalAppendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal equality key: %w", evoerr.ErrJournalIO)
	}

	for _, line := range lines {
		var existing appliance.Message
		if err := json.Unmarshal(line, &existing); err != nil {
			continue
		}
		existingKey, err := json.Marshal(existing.JournalEqualityKey())
		if err != nil {
			continue
		}
		if bytes.Equal(key, existingKey) {
			metrics.JournalAppendsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	encoded, err := json.Marshal(msg)
	if err != nil {
		metrics.JournalAppendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal message: %w", evoerr.ErrJournalIO)
	}

	f, err := os.OpenFile(j.path(deviceRecno), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		metrics.JournalAppendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("open journal for append: %w", evoerr.ErrJournalIO)
	}
	defer f.Close()

	if _, err := f.Write(append(encoded, '\n')); err != nil {
		metrics.JournalAppendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("append journal line: %w", evoerr.ErrJournalIO)
	}

	metrics.JournalAppendsTotal.WithLabelValues("appended").Inc()
	metrics.JournalLines.WithLabelValues(fmt.Sprint(deviceRecno)).Inc()
	return nil
}

// RemoveByRecno rewrites the device's journal to a sibling temp path,
// omitting every line whose RecnoZX equals recnoZX, then atomically
// replaces the original (spec §4.G). Stopping a recno not present in
// the journal is a documented no-op (spec §8 "stop idempotence").
func (j *Journal) RemoveByRecno(ctx context.Context, deviceRecno int64, recnoZX string) error {
	releaseWrite, err := j.acquireWriteLock(ctx, deviceRecno)
	if err != nil {
		return err
	}
	defer releaseWrite()

	lines, err := j.readLines(deviceRecno)
	if err != nil {
		return err
	}

	kept := make([][]byte, 0, len(lines))
	removed := 0
	for _, line := range lines {
		var existing appliance.Message
		if err := json.Unmarshal(line, &existing); err == nil && existing.RecnoZX == recnoZX {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return nil
	}

	tmpPath := j.path(deviceRecno) + ".tmp"
	var buf bytes.Buffer
	for _, line := range kept {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write journal temp file: %w", evoerr.ErrJournalIO)
	}
	if err := os.Rename(tmpPath, j.path(deviceRecno)); err != nil {
		return fmt.Errorf("replace journal file: %w", evoerr.ErrJournalIO)
	}

	metrics.JournalLines.WithLabelValues(fmt.Sprint(deviceRecno)).Set(float64(len(kept)))
	return nil
}

// Delete removes the device's journal file entirely (spec §4.G, used on
// clear-sign).
func (j *Journal) Delete(deviceRecno int64) error {
	if err := os.Remove(j.path(deviceRecno)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete journal file: %w", evoerr.ErrJournalIO)
	}
	metrics.JournalLines.WithLabelValues(fmt.Sprint(deviceRecno)).Set(0)
	return nil
}

// ReadAll streams every line of the device's journal as a raw JSON
// message, for the CGI endpoint's evolutionGetActiveMessagesForDevice
// action (spec §4.H).
func (j *Journal) ReadAll(deviceRecno int64) ([]json.RawMessage, error) {
	lines, err := j.readLines(deviceRecno)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(lines))
	for _, line := range lines {
		out = append(out, json.RawMessage(line))
	}
	return out, nil
}

func (j *Journal) readLines(deviceRecno int64) ([][]byte, error) {
	data, err := os.ReadFile(j.path(deviceRecno))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal file: %w", evoerr.ErrJournalIO)
	}
	var lines [][]byte
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, []byte(line))
	}
	return lines, nil
}

// acquireWriteLock waits up to lockGracePeriod for any existing
// read/write lock to clear, then creates the write-in-progress advisory
// marker (spec §4.G concurrency model).
func (j *Journal) acquireWriteLock(ctx context.Context, deviceRecno int64) (func(), error) {
	deadline := time.Now().Add(lockGracePeriod)
	for {
		_, readErr := os.Stat(j.readLockPath(deviceRecno))
		f, writeErr := os.OpenFile(j.writeLockPath(deviceRecno), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if readErr != nil && writeErr == nil {
			f.Close()
			return func() { os.Remove(j.writeLockPath(deviceRecno)) }, nil
		}
		if writeErr == nil {
			f.Close()
			os.Remove(j.writeLockPath(deviceRecno))
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("journal busy for device %d: %w", deviceRecno, evoerr.ErrJournalBusy)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollDelay):
		}
	}
}
