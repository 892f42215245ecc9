// Package transcript exports session histories as JSON files.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/natefinch/atomic"

	"github.com/docker/deskpilot/pkg/session"
)

// Transcript is the exported form of a session.
type Transcript struct {
	Session    session.Status         `json:"session"`
	History    []session.HistoryEntry `json:"history"`
	ExportedAt time.Time              `json:"exportedAt"`
}

func New(sess *session.Session, now time.Time) Transcript {
	return Transcript{
		Session:    sess.Status(),
		History:    sess.History(),
		ExportedAt: now,
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Path returns the file a session's transcript is written to in dir.
func Path(dir, sessionID string) string {
	return filepath.Join(dir, unsafeChars.ReplaceAllString(sessionID, "_")+".json")
}

// Save writes t into dir, replacing any earlier transcript of the same
// session. Readers never see a partially written file.
func Save(dir string, t Transcript) (string, error) {
	if t.Session.ID == "" {
		return "", errors.New("transcript has no session id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating transcript directory: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return "", fmt.Errorf("encoding transcript: %w", err)
	}

	path := Path(dir, t.Session.ID)
	if err := atomic.WriteFile(path, &buf); err != nil {
		return "", fmt.Errorf("writing transcript: %w", err)
	}
	return path, nil
}

// Load reads a transcript written by Save.
func Load(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, err
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return Transcript{}, fmt.Errorf("decoding transcript %s: %w", path, err)
	}
	return t, nil
}
