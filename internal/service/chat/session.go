package chat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/z-voice/internal/model/chat"
)

const (
	// HistoryFile 是每个会话目录下的对话日志文件名。
	HistoryFile = "chat_history.json"
	// IDLayout 生成可按字典序排序的会话 ID。
	IDLayout = "2006-01-02_15-04-05"
)

var ErrArtifactNotFound = errors.New("artifact not found")

var artifactPattern = regexp.MustCompile(`^(?:user|assistant)_(\d+)\.[a-z0-9_]+$`)

// Session owns one conversation: its id, transcript, turn counter and
// artifact directory.
type Session struct {
	ID        string
	Dir       string
	CreatedAt time.Time
	Log       *Log

	mu   sync.Mutex
	next int
}

// NewSession creates a fresh conversation directory under root and writes the
// initial transcript. Ids collide only within the same second; a numeric
// suffix keeps them unique and sortable.
func NewSession(root, preamble string, now time.Time) (*Session, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create conversations dir: %w", err)
	}

	base := now.Format(IDLayout)
	id := base
	for attempt := 1; ; attempt++ {
		dir := filepath.Join(root, id)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		id = fmt.Sprintf("%s-%d", base, attempt)
	}

	dir := filepath.Join(root, id)
	session := &Session{
		ID:        id,
		Dir:       dir,
		CreatedAt: now,
		Log:       NewLog(filepath.Join(dir, HistoryFile), preamble),
	}
	if err := session.Log.Persist(); err != nil {
		return nil, err
	}
	return session, nil
}

// OpenSession resumes a conversation directory written by an earlier run. The
// counter continues after the highest turn index found among the artifacts.
func OpenSession(dir string) (*Session, error) {
	log, err := LoadLog(filepath.Join(dir, HistoryFile))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan session dir: %w", err)
	}

	next := 0
	for _, entry := range entries {
		m := artifactPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n+1 > next {
			next = n + 1
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat session dir: %w", err)
	}
	createdAt := info.ModTime()
	id := filepath.Base(dir)
	if parsed, err := time.ParseInLocation(IDLayout, id, time.Local); err == nil {
		createdAt = parsed
	}

	return &Session{
		ID:        id,
		Dir:       dir,
		CreatedAt: createdAt,
		Log:       log,
		next:      next,
	}, nil
}

// NextTurn returns the index for a new turn and advances the counter. Call it
// exactly once per attempted turn.
func (s *Session) NextTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	s.next++
	return n
}

// Turns reports how many turns have been attempted.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// UserAudioPath is the input-audio artifact for turn n.
func (s *Session) UserAudioPath(n int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("user_%d.wav", n))
}

// AssistantAudioPath is the synthesized-audio artifact for turn n.
func (s *Session) AssistantAudioPath(n int, ext string) string {
	if ext == "" {
		ext = "mp3"
	}
	return filepath.Join(s.Dir, fmt.Sprintf("assistant_%d.%s", n, ext))
}

// WriteArtifact stores data at path inside the session directory.
func (s *Session) WriteArtifact(path string, data []byte) error {
	rel, err := filepath.Rel(s.Dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("artifact %s outside session dir", path)
	}
	return writeFileAtomic(path, data, 0o644)
}

// FindAssistantAudio locates the synthesized audio of turn n, whatever its
// extension, and returns its path and format.
func (s *Session) FindAssistantAudio(n int) (string, string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, fmt.Sprintf("assistant_%d.*", n)))
	if err != nil {
		return "", "", err
	}
	for _, match := range matches {
		ext := filepath.Ext(match)
		if ext == ".tmp" {
			continue
		}
		return match, ext[1:], nil
	}
	return "", "", ErrArtifactNotFound
}

// Snapshot is a read-only view used by the HTTP and CLI surfaces.
type Snapshot struct {
	ID      string        `json:"id"`
	Turns   int           `json:"turns"`
	Records []chat.Record `json:"records"`
}

// Snapshot copies the current session state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{ID: s.ID, Turns: s.Turns(), Records: s.Log.Records()}
}
