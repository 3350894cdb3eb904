package chat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
	"github.com/zhouzirui/z-voice/internal/model/chat"
)

func sampleLog(t *testing.T) *Log {
	t.Helper()
	log := NewLog(filepath.Join(t.TempDir(), HistoryFile), "Eres Marc.")

	happy := emotion.Happy
	at := time.Date(2025, 3, 1, 18, 30, 0, 123456789, time.FixedZone("CET", 3600))
	require.NoError(t, log.Append(chat.UserRecord("¿Vamos a por un café?", at)))
	require.True(t, log.AnnotateLastUser(chat.IntPtr(42)))
	require.NoError(t, log.Append(chat.Record{
		Role:             chat.RoleAssistant,
		ContentRaw:       "Claro. *(sonríe)* Happy",
		ContentUI:        "Claro. *(sonríe)*",
		ContentTTS:       "Claro.",
		Expression:       &happy,
		CompletionTokens: chat.IntPtr(9),
		CompletionTime:   chat.FloatPtr(0.125),
	}))
	require.NoError(t, log.Append(chat.UserRecord("<b>y luego?</b>", at.Add(time.Minute))))
	require.NoError(t, log.Append(chat.ErrorRecord("rate limited")))
	return log
}

func TestLogPersistRoundTrip(t *testing.T) {
	log := sampleLog(t)
	require.NoError(t, log.Persist())

	loaded, err := LoadLog(log.Path())
	require.NoError(t, err)
	assert.Equal(t, log.Records(), loaded.Records())
	assert.Equal(t, "Eres Marc.", loaded.Preamble())
}

func TestLogPersistFormat(t *testing.T) {
	log := sampleLog(t)
	require.NoError(t, log.Persist())
	require.NoError(t, log.Persist())

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "[\n  {\n    \"role\": \"system\""))
	assert.Contains(t, text, "¿Vamos a por un café?")
	assert.Contains(t, text, "<b>y luego?</b>")
	assert.NotContains(t, text, "null")

	// 字段顺序固定
	raw := text[strings.Index(text, `"content_raw"`):]
	for _, key := range []string{`"content_ui"`, `"content_tts"`, `"expression"`, `"completion_tokens"`, `"completion_time"`} {
		next := strings.Index(raw, key)
		require.GreaterOrEqual(t, next, 0, key)
		raw = raw[next:]
	}

	var generic []map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	require.Len(t, generic, 5)
	assert.NotContains(t, generic[3], "prompt_tokens")
	assert.EqualValues(t, 42, generic[1]["prompt_tokens"])

	entries, err := os.ReadDir(filepath.Dir(log.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLoadLogRejectsMissingPreamble(t *testing.T) {
	path := filepath.Join(t.TempDir(), HistoryFile)
	require.NoError(t, os.WriteFile(path, []byte(`[{"role":"user","content":"hola"}]`), 0o644))

	_, err := LoadLog(path)
	assert.ErrorIs(t, err, ErrCorruptLog)
}

func TestLogMessagesUseRawAssistantContent(t *testing.T) {
	log := sampleLog(t)
	require.NoError(t, log.Append(chat.Record{Role: chat.RoleUser}))

	assert.Equal(t, []chat.Message{
		{Role: chat.RoleSystem, Content: "Eres Marc."},
		{Role: chat.RoleUser, Content: "¿Vamos a por un café?"},
		{Role: chat.RoleAssistant, Content: "Claro. *(sonríe)* Happy"},
		{Role: chat.RoleUser, Content: "<b>y luego?</b>"},
		{Role: chat.RoleSystem, Content: "[ERROR] rate limited"},
	}, log.Messages())
}

func TestLogAppendRejectsEmptyRole(t *testing.T) {
	log := NewLog("", "preamble")
	assert.ErrorIs(t, log.Append(chat.Record{Content: "x"}), ErrInvalidRecord)
	assert.Equal(t, 1, log.Len())
	assert.Error(t, log.Persist())
}

func TestLogRecordsAreCopies(t *testing.T) {
	log := sampleLog(t)
	records := log.Records()
	*records[1].PromptTokens = 1
	records[0].Content = "changed"

	fresh := log.Records()
	assert.Equal(t, 42, *fresh[1].PromptTokens)
	assert.Equal(t, "Eres Marc.", fresh[0].Content)
}

func TestLogAnnotateWithoutUser(t *testing.T) {
	log := NewLog("", "preamble")
	assert.False(t, log.AnnotateLastUser(chat.IntPtr(3)))
	assert.False(t, log.AnnotateLastUser(nil))
}

func TestLogRederive(t *testing.T) {
	log := sampleLog(t)
	sad := emotion.Sad

	changed := log.Rederive(func(raw string) (string, string, *emotion.Label) {
		return "ui:" + raw, "tts", &sad
	})
	assert.Equal(t, 1, changed)

	records := log.Records()
	assert.Equal(t, "Eres Marc.", records[0].Content)
	assert.Equal(t, "Claro. *(sonríe)* Happy", records[2].ContentRaw)
	assert.Equal(t, "ui:Claro. *(sonríe)* Happy", records[2].ContentUI)
	assert.Equal(t, emotion.Sad, *records[2].Expression)

	again := log.Rederive(func(raw string) (string, string, *emotion.Label) {
		return "ui:" + raw, "tts", &sad
	})
	assert.Zero(t, again)
}
