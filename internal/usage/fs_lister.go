package usage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// FSLister walks `<runtimeHome>/agents/<agentId>/sessions/<sessionId>.jsonl`
// on the local filesystem: a flat session-storage directory scanned
// with os.ReadDir.
type FSLister struct {
	RuntimeHome string
}

// NewFSLister builds a FileLister rooted at runtimeHome.
func NewFSLister(runtimeHome string) *FSLister {
	return &FSLister{RuntimeHome: runtimeHome}
}

// ListSessionFiles enumerates every *.jsonl file under
// <RuntimeHome>/agents/*/sessions/*.jsonl. A missing agents/ directory
// yields an empty list, not an error — nothing has run yet.
func (l *FSLister) ListSessionFiles(ctx context.Context) ([]SessionFileInfo, error) {
	agentsDir := filepath.Join(l.RuntimeHome, "agents")
	agentEntries, err := os.ReadDir(agentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("usage: list agents dir: %w", err)
	}

	var out []SessionFileInfo
	for _, agentEntry := range agentEntries {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if !agentEntry.IsDir() {
			continue
		}
		agentID := agentEntry.Name()
		sessionsDir := filepath.Join(agentsDir, agentID, "sessions")
		sessionEntries, err := os.ReadDir(sessionsDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("usage: list sessions dir for agent %s: %w", agentID, err)
		}

		for _, sessionEntry := range sessionEntries {
			if sessionEntry.IsDir() || !strings.HasSuffix(sessionEntry.Name(), ".jsonl") {
				continue
			}
			sessionID := strings.TrimSuffix(sessionEntry.Name(), ".jsonl")
			path := filepath.Join(sessionsDir, sessionEntry.Name())
			fp, modTime, err := statFingerprint(path)
			if err != nil {
				continue // file vanished between ReadDir and Stat; skip, next scan will pick it up
			}
			out = append(out, SessionFileInfo{
				AgentID: agentID,
				SessionID: sessionID,
				Path: path,
				ModTime: modTime,
				Fingerprint: fp,
			})
		}
	}
	return out, nil
}

// statFingerprint extracts (deviceID, inode, size, mtime) from a regular
// file, matching the syscall.Stat_t fields Cursor.Fingerprint compares
// against ( identity).
func statFingerprint(path string) (FileFingerprint, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, time.Time{}, err
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return FileFingerprint{}, time.Time{}, fmt.Errorf("usage: unsupported stat_t for %s", path)
	}
	fp := FileFingerprint{
		DeviceID: uint64(sys.Dev),
		Inode: uint64(sys.Ino),
		SizeBytes: info.Size(),
		ModTimeMillis: info.ModTime().UnixMilli(),
	}
	return fp, info.ModTime(), nil
}
