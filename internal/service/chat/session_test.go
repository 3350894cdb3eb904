package chat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-voice/internal/model/chat"
)

func TestNewSessionLayout(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2025, 7, 4, 9, 5, 3, 0, time.Local)

	session, err := NewSession(root, "preamble", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-07-04_09-05-03", session.ID)
	assert.Equal(t, filepath.Join(root, session.ID), session.Dir)
	assert.FileExists(t, filepath.Join(session.Dir, HistoryFile))

	second, err := NewSession(root, "preamble", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-07-04_09-05-03-1", second.ID)
	assert.Less(t, session.ID, second.ID)
}

func TestSessionTurnCounter(t *testing.T) {
	session, err := NewSession(t.TempDir(), "preamble", time.Now())
	require.NoError(t, err)

	first := session.NextTurn()
	second := session.NextTurn()
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 2, session.Turns())
	assert.NotEqual(t, session.UserAudioPath(first), session.UserAudioPath(second))
	assert.NotEqual(t, session.AssistantAudioPath(first, "mp3"), session.AssistantAudioPath(second, "mp3"))
	assert.Equal(t, "assistant_1.mp3", filepath.Base(session.AssistantAudioPath(1, "")))
}

func TestOpenSessionResumesCounter(t *testing.T) {
	session, err := NewSession(t.TempDir(), "preamble", time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local))
	require.NoError(t, err)

	n := session.NextTurn()
	require.NoError(t, session.WriteArtifact(session.UserAudioPath(n), []byte("RIFF")))
	require.NoError(t, session.WriteArtifact(session.AssistantAudioPath(n, "mp3"), []byte("ID3")))
	n = session.NextTurn()
	require.NoError(t, session.WriteArtifact(session.UserAudioPath(n), []byte("RIFF")))
	require.NoError(t, session.Log.Append(chat.UserRecord("hola", time.Now())))
	require.NoError(t, session.Log.Persist())

	resumed, err := OpenSession(session.Dir)
	require.NoError(t, err)
	assert.Equal(t, session.ID, resumed.ID)
	assert.Equal(t, 2, resumed.NextTurn())
	assert.Equal(t, session.Log.Records(), resumed.Log.Records())
	assert.Equal(t, 2025, resumed.CreatedAt.Year())
}

func TestSessionFindAssistantAudio(t *testing.T) {
	session, err := NewSession(t.TempDir(), "preamble", time.Now())
	require.NoError(t, err)

	_, _, err = session.FindAssistantAudio(0)
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	require.NoError(t, session.WriteArtifact(session.AssistantAudioPath(0, "wav"), []byte("RIFF")))
	path, format, err := session.FindAssistantAudio(0)
	require.NoError(t, err)
	assert.Equal(t, "wav", format)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)
}

func TestSessionWriteArtifactStaysInside(t *testing.T) {
	session, err := NewSession(t.TempDir(), "preamble", time.Now())
	require.NoError(t, err)
	assert.Error(t, session.WriteArtifact(filepath.Join(session.Dir, "..", "escape.wav"), nil))
}
