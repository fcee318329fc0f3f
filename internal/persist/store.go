package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"pkt.systems/labterm/schema"
	"pkt.systems/pslog"
)

const transcriptExt = ".txt"

// TranscriptInfo describes an archived transcript file.
type TranscriptInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Store archives session transcripts as text files under dir/<user>/.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a transcript store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a transcript store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("transcript directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("transcript_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// SaveTranscript writes the transcript atomically and returns its path.
func (s *Store) SaveTranscript(ctx context.Context, transcript schema.Transcript) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if transcript.SessionID == "" {
		return "", schema.ErrInvalidRequest
	}
	path := s.pathFor(transcript.UserID, TranscriptName(transcript.LabID, transcript.SessionID))
	if err := writeFileAtomic(path, []byte(transcript.Text)); err != nil {
		if s.log != nil {
			s.log.Warn("transcript save failed", "user", transcript.UserID, "session", transcript.SessionID, "err", err)
		}
		return "", err
	}
	if s.log != nil {
		s.log.Trace("transcript save ok", "user", transcript.UserID, "session", transcript.SessionID, "bytes", len(transcript.Text))
	}
	return path, nil
}

// Load reads an archived transcript by file name.
func (s *Store) Load(userID schema.UserID, name string) (string, bool, error) {
	if name != filepath.Base(name) || !strings.HasSuffix(name, transcriptExt) {
		return "", false, schema.ErrInvalidRequest
	}
	data, err := os.ReadFile(s.pathFor(userID, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("transcript load miss", "user", userID, "name", name)
			}
			return "", false, nil
		}
		if s.log != nil {
			s.log.Warn("transcript load failed", "user", userID, "name", name, "err", err)
		}
		return "", false, err
	}
	return string(data), true, nil
}

// List returns the archived transcripts of a user sorted by name.
func (s *Store) List(userID schema.UserID) ([]TranscriptInfo, error) {
	entries, err := os.ReadDir(s.userDir(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]TranscriptInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), transcriptExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, TranscriptInfo{Name: entry.Name(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TranscriptName returns the archive file name for a session.
func TranscriptName(lab schema.LabID, sessionID schema.SessionID) string {
	labName := sanitize(string(lab))
	if labName == "" {
		labName = string(schema.DefaultLab)
	}
	return labName + "-" + sanitize(string(sessionID)) + transcriptExt
}

func (s *Store) userDir(userID schema.UserID) string {
	name := sanitize(string(userID))
	if name == "" || name == "." || name == ".." {
		name = "unknown"
	}
	return filepath.Join(s.dir, name)
}

func (s *Store) pathFor(userID schema.UserID, name string) string {
	return filepath.Join(s.userDir(userID), name)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "transcript-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
