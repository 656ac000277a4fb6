package usage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/clawcontrol/clawcontrol/internal/lease"
)

// syncLeaseName is the lease.Manager name used to serialize SyncUsage
// across concurrent writers
const syncLeaseName = "usage.sync"

// maxLineBytes bounds a single JSONL line; a longer line is skipped rather
// than read unbounded into memory ( robustness note).
const maxLineBytes = 1 << 20 // 1MiB

// FileOpener opens a session file for reading, seeking to offset before
// the caller starts scanning lines. Kept separate from FileLister so a
// production implementation can back both with the same filesystem walk.
type FileOpener interface {
	OpenAt(ctx context.Context, path string, offset int64) (io.ReadCloser, error)
}

// SyncResult is SyncUsage's outcome step 6.
type SyncResult struct {
	LockAcquired bool
	FilesScanned int
	FilesUpdated int
	SessionsUpdated int
	ToolsUpserted int
	CursorResets int
	FilesTotal int
	FilesRemaining int
	CoveragePct float64
	DurationMs int64
}

// Ingester implements the Usage Ingestion Engine: scan session
// files under lease, fold each file's new bytes into a SessionDelta, and
// persist delta + cursor together per file. Wired from cmd/usage.go in
// production.
type Ingester struct {
	Lister *lease.Manager
	Files FileLister
	Opener FileOpener
	Store Store
	TTL time.Duration
}

// NewIngester builds an Ingester. ttl is the lease TTL SyncUsage holds for
// the duration of one scan (defaults to 10 minutes when zero).
func NewIngester(leaseMgr *lease.Manager, files FileLister, opener FileOpener, store Store, ttl time.Duration) *Ingester {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Ingester{Lister: leaseMgr, Files: files, Opener: opener, Store: store, TTL: ttl}
}

// SyncUsage implements: acquire the sync lease (skip, never
// block, if unavailable), enumerate session files, and for each file
// whose fingerprint has advanced since the last cursor, fold new lines
// into a delta and commit the delta + cursor together.
func (in *Ingester) SyncUsage(ctx context.Context) (SyncResult, error) {
	started := time.Now()
	res := lease.WithLease(ctx, in.Lister, syncLeaseName, in.TTL, func(ctx context.Context) (SyncResult, error) {
		return in.syncOnce(ctx)
	})
	if !res.LockAcquired {
		if res.FnErr != nil {
			return SyncResult{}, res.FnErr
		}
		return SyncResult{LockAcquired: false}, nil
	}
	out := res.FnResult
	out.LockAcquired = true
	out.DurationMs = time.Since(started).Milliseconds()
	return out, res.FnErr
}

func (in *Ingester) syncOnce(ctx context.Context) (SyncResult, error) {
	files, err := in.Files.ListSessionFiles(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("usage: list session files: %w", err)
	}

	var res SyncResult
	res.FilesTotal = len(files)

	for _, f := range files {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		res.FilesScanned++
		updated, sessionChanged, toolsN, resetN, err := in.processFile(ctx, f)
		if err != nil {
			if errors.Is(err, ErrFileUnreadable) {
				slog.Warn("usage: skipping unreadable session file", "path", f.Path, "error", err)
				res.FilesRemaining++
				continue
			}
			return res, err
		}
		if updated {
			res.FilesUpdated++
		}
		if sessionChanged {
			res.SessionsUpdated++
		}
		res.ToolsUpserted += toolsN
		res.CursorResets += resetN
	}

	if res.FilesTotal > 0 {
		res.CoveragePct = float64(res.FilesScanned-res.FilesRemaining) / float64(res.FilesTotal) * 100
	}
	return res, nil
}

// processFile handles one session file steps 1-5: stat,
// resolve offset, read new lines, fold into a delta, and — if the delta
// is non-empty — commit delta + cursor together in one transaction.
func (in *Ingester) processFile(ctx context.Context, f SessionFileInfo) (updated, sessionChanged bool, toolsUpserted, cursorReset int, err error) {
	cursor, err := in.Store.GetCursor(ctx, f.AgentID, f.SessionID)
	if err != nil {
		return false, false, 0, 0, fmt.Errorf("usage: get cursor: %w", err)
	}

	offset, reset := ResolveOffset(cursor, f.Fingerprint)
	if reset {
		cursorReset = 1
	}

	if f.Fingerprint.SizeBytes == offset {
		return false, false, 0, cursorReset, nil
	}

	r, err := in.Opener.OpenAt(ctx, f.Path, offset)
	if err != nil {
		return false, false, 0, cursorReset, fmt.Errorf("%w: %s: %v", ErrFileUnreadable, f.Path, err)
	}
	defer r.Close()

	delta := NewSessionDelta(f.SessionID, f.AgentID)
	read, scanErr := foldLines(r, delta)
	if scanErr != nil {
		return false, false, 0, cursorReset, fmt.Errorf("%w: %s: %v", ErrFileUnreadable, f.Path, scanErr)
	}

	nextCursor := NextCursor(f.AgentID, f.SessionID, f.Fingerprint, offset+read, time.Now())

	err = in.Store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if !delta.IsEmpty() {
			if err := ApplyDelta(ctx, tx, delta); err != nil {
				return err
			}
		}
		return tx.UpsertCursor(ctx, nextCursor)
	})
	if err != nil {
		return false, false, 0, cursorReset, fmt.Errorf("usage: commit file %s: %w", f.Path, err)
	}

	return true, !delta.IsEmpty(), len(delta.ToolTotals), cursorReset, nil
}

// foldLines scans newline-delimited JSON from r, folding every line
// ParseLine accepts into delta, and returns the number of bytes consumed.
// A line exceeding maxLineBytes is skipped, not fatal.
func foldLines(r io.Reader, delta *SessionDelta) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var consumed int64
	for scanner.Scan() {
		line := scanner.Bytes()
		consumed += int64(len(line)) + 1 // +1 for the newline the scanner strips

		ev, ok := ParseLine(line)
		if !ok {
			continue
		}
		delta.Fold(ev)
	}
	if err := scanner.Err(); err != nil {
		return consumed, err
	}
	return consumed, nil
}

// osFileOpener is the production FileOpener, backed by os.Open + Seek.
type osFileOpener struct{}

// NewOSFileOpener builds the default filesystem-backed FileOpener.
func NewOSFileOpener() FileOpener { return osFileOpener{} }

func (osFileOpener) OpenAt(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
