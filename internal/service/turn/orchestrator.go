package turn

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/metrics"
	"github.com/zhouzirui/z-voice/internal/model/chat"
	"github.com/zhouzirui/z-voice/internal/model/speech"
	chatsvc "github.com/zhouzirui/z-voice/internal/service/chat"
	"github.com/zhouzirui/z-voice/internal/service/textproc"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// DefaultMaxTTSChars bounds the text sent to the synthesis port.
const DefaultMaxTTSChars = 1500

var errEmptyTranscript = errors.New("transcription returned no text")

// Options tunes an Orchestrator.
type Options struct {
	MaxTTSChars int
	Observer    Observer
	Now         func() time.Time
}

// Orchestrator runs turns against one session. It is not safe for
// concurrent Process calls; Worker serializes them.
type Orchestrator struct {
	session     *chatsvc.Session
	transcriber Transcriber
	generator   Generator
	synthesizer Synthesizer
	maxTTSChars int
	observer    Observer
	now         func() time.Time
	log         *log.Logger
}

// NewOrchestrator wires the three ports to a session. synthesizer may be nil
// to run text-only.
func NewOrchestrator(session *chatsvc.Session, transcriber Transcriber, generator Generator, synthesizer Synthesizer, opts Options) *Orchestrator {
	if opts.MaxTTSChars <= 0 {
		opts.MaxTTSChars = DefaultMaxTTSChars
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		session:     session,
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
		maxTTSChars: opts.MaxTTSChars,
		observer:    opts.Observer,
		now:         opts.Now,
		log:         logger.WithPrefix("[turn]"),
	}
}

// appendRecord appends rec to the log, logging a rejected record.
func (o *Orchestrator) appendRecord(n int, rec chat.Record) error {
	if err := o.session.Log.Append(rec); err != nil {
		o.log.Error("could not append record", "turn", n, "role", rec.Role, "err", err)
		return err
	}
	return nil
}

// 生成失败的分类，只影响日志与注解文本
const (
	classUnauthorized = "unauthorized"
	classRetryable    = "retryable"
	classFatal        = "fatal"
)

func failureClass(err error) string {
	var apiErr *utils.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.IsUnauthorized():
		return classUnauthorized
	case utils.IsRetryable(err):
		return classRetryable
	default:
		return classFatal
	}
}

// generationDetail is the text stored after the [ERROR] prefix.
func generationDetail(err error, class string) string {
	switch {
	case errors.Is(err, chat.ErrEmptyCompletion):
		return MessageGenerationFailed
	case class == classUnauthorized:
		return "credentials rejected: " + err.Error()
	default:
		return err.Error()
	}
}

// Session returns the session the orchestrator writes to.
func (o *Orchestrator) Session() *chatsvc.Session {
	return o.session
}

// Process runs turn n for a finished recording. Failures are reported in
// Result.Error, never as a panic or a returned error.
func (o *Orchestrator) Process(ctx context.Context, rec speech.Recording, n int) *Result {
	res := &Result{Turn: n}
	o.log.Info("turn started", "turn", n, "audio", rec.Duration())

	o.emit(n, StateTranscribing, "")
	if !rec.Empty() {
		if err := o.session.WriteArtifact(o.session.UserAudioPath(n), rec.WAV()); err != nil {
			o.log.Warn("could not store input audio", "turn", n, "err", err)
		}
	}

	text, err := o.transcribe(ctx, rec)
	if err != nil {
		o.log.Warn("transcription failed", "turn", n, "err", err)
		return o.fail(res, &TurnError{Kind: KindTranscription, Message: MessageTranscriptionFailed, Err: err})
	}
	res.UserText = text

	if err := o.appendRecord(n, chat.UserRecord(text, o.now())); err != nil {
		return o.fail(res, &TurnError{Kind: KindGeneration, Message: messageGenerationRetry, Err: err})
	}

	o.emit(n, StateAwaitingGeneration, "")
	completion, err := o.generate(ctx)
	if err != nil {
		class := failureClass(err)
		o.log.Error("generation failed", "turn", n, "class", class, "err", err)
		// 注解写入失败只记日志，轮次本身已经失败
		_ = o.appendRecord(n, chat.ErrorRecord(generationDetail(err, class)))
		res.PersistErr = o.persist()
		return o.fail(res, &TurnError{Kind: KindGeneration, Message: messageGenerationRetry, Err: err})
	}

	o.emit(n, StatePostProcessing, "")
	processed := textproc.Process(completion.Text)
	res.UIText = processed.UI
	res.TTSText = processed.TTS
	res.Expression = processed.Expression

	assistant := chat.Record{
		Role:       chat.RoleAssistant,
		ContentRaw: completion.Text,
		ContentUI:  processed.UI,
		ContentTTS: processed.TTS,
		Expression: processed.Expression,
	}
	if usage := completion.Usage; usage != nil {
		o.session.Log.AnnotateLastUser(usage.PromptTokens)
		assistant.CompletionTokens = usage.CompletionTokens
		assistant.CompletionTime = usage.CompletionTime
		recordUsage(usage)
	}
	if err := o.appendRecord(n, assistant); err != nil {
		return o.fail(res, &TurnError{Kind: KindGeneration, Message: messageGenerationRetry, Err: err})
	}
	res.PersistErr = o.persist()

	if audio := o.synthesize(ctx, n, processed.TTS); audio != nil {
		res.Audio = audio.Data
		res.AudioFormat = audio.Extension()
		path := o.session.AssistantAudioPath(n, audio.Extension())
		if err := o.session.WriteArtifact(path, audio.Data); err != nil {
			o.log.Warn("could not store synthesized audio", "turn", n, "err", err)
		} else {
			res.AudioPath = path
		}
	}

	o.emit(n, StateDone, "")
	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	o.log.Info("turn finished", "turn", n, "expression", labelString(res.Expression), "audio", res.HasAudio())
	return res
}

func (o *Orchestrator) transcribe(ctx context.Context, rec speech.Recording) (string, error) {
	started := time.Now()
	text, err := o.transcriber.Transcribe(ctx, rec)
	metrics.ObservePort("transcription", providerName(o.transcriber), time.Since(started).Seconds(), err)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyTranscript
	}
	return text, nil
}

func (o *Orchestrator) generate(ctx context.Context) (*chat.Completion, error) {
	started := time.Now()
	completion, err := o.generator.Complete(ctx, o.session.Log.Messages())
	if err == nil && (completion == nil || strings.TrimSpace(completion.Text) == "") {
		err = chat.ErrEmptyCompletion
	}
	metrics.ObservePort("generation", providerName(o.generator), time.Since(started).Seconds(), err)
	return completion, err
}

// synthesize returns nil whenever the turn should go on without audio.
func (o *Orchestrator) synthesize(ctx context.Context, n int, text string) *speech.Audio {
	skip := func(reason string) *speech.Audio {
		o.emit(n, StateSynthesizing, "skipped: "+reason)
		metrics.SynthesisSkipped.WithLabelValues(reason).Inc()
		o.log.Debug("synthesis skipped", "turn", n, "reason", reason)
		return nil
	}

	switch {
	case o.synthesizer == nil:
		return skip("disabled")
	case text == "":
		return skip("empty_text")
	case utf8.RuneCountInString(text) > o.maxTTSChars:
		return skip("too_long")
	}

	o.emit(n, StateSynthesizing, "")
	started := time.Now()
	audio, err := o.synthesizer.Synthesize(ctx, text)
	metrics.ObservePort("synthesis", providerName(o.synthesizer), time.Since(started).Seconds(), err)
	if err != nil {
		o.log.Warn("synthesis failed, continuing without audio", "turn", n, "err", err)
		metrics.SynthesisSkipped.WithLabelValues("error").Inc()
		return nil
	}
	if audio.Empty() {
		metrics.SynthesisSkipped.WithLabelValues("no_audio").Inc()
		return nil
	}
	return audio
}

func (o *Orchestrator) persist() error {
	if err := o.session.Log.Persist(); err != nil {
		o.log.Error("could not persist conversation log", "path", o.session.Log.Path(), "err", err)
		return err
	}
	return nil
}

func (o *Orchestrator) fail(res *Result, terr *TurnError) *Result {
	res.Error = terr
	o.emit(res.Turn, StateFailed, string(terr.Kind))
	metrics.TurnsTotal.WithLabelValues(string(terr.Kind)).Inc()
	return res
}

func (o *Orchestrator) emit(n int, state State, reason string) {
	if o.observer == nil {
		return
	}
	o.observer(Event{Turn: n, State: state, Reason: reason, At: o.now()})
}

func recordUsage(usage *chat.Usage) {
	if usage.PromptTokens != nil {
		metrics.TokensTotal.WithLabelValues("prompt").Add(float64(*usage.PromptTokens))
	}
	if usage.CompletionTokens != nil {
		metrics.TokensTotal.WithLabelValues("completion").Add(float64(*usage.CompletionTokens))
	}
}

func labelString(l *emotion.Label) string {
	if l == nil {
		return ""
	}
	return l.String()
}
