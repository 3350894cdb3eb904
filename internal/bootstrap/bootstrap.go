// Package bootstrap assembles the pieces shared by the server and the CLI:
// configuration, the active persona and the provider registry.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/model/persona"
	"github.com/zhouzirui/z-voice/internal/service/ai"
	chatsvc "github.com/zhouzirui/z-voice/internal/service/chat"
	"github.com/zhouzirui/z-voice/internal/service/provider"
	"github.com/zhouzirui/z-voice/internal/service/turn"
)

// Runtime is the resolved startup state.
type Runtime struct {
	Config   *config.Config
	Personas *persona.MemoryStore
	Persona  persona.Persona
	Preamble string
	Registry *provider.Registry
}

// LoadEnv reads .env files if present. A missing file is not an error.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("no .env file loaded, using process environment", "err", err)
	}
}

// Load reads configuration, configures logging and resolves the persona.
func Load() (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}
	return New(cfg)
}

// New builds a Runtime from an already loaded configuration.
func New(cfg *config.Config) (*Runtime, error) {
	personas, err := LoadPersonas(cfg.Conversation.PersonaFile)
	if err != nil {
		return nil, err
	}
	active, ok := personas.FindByID(cfg.Conversation.PersonaID)
	if !ok {
		return nil, fmt.Errorf("persona %q not found", cfg.Conversation.PersonaID)
	}

	return &Runtime{
		Config:   cfg,
		Personas: personas,
		Persona:  active,
		Preamble: ai.NewPersonaPromptManager().BuildSystemPrompt(active),
		Registry: provider.NewRegistry(cfg, active.VoiceID),
	}, nil
}

// LoadPersonas merges the built-in personas with the optional YAML file.
func LoadPersonas(file string) (*persona.MemoryStore, error) {
	if file == "" {
		return persona.NewMemoryStore(persona.Seed()), nil
	}
	fromFile, err := persona.LoadFile(file)
	if err != nil {
		return nil, err
	}
	return persona.NewMemoryStore(persona.Seed(), fromFile), nil
}

// Session resumes Conversation.Resume when set and starts a new conversation
// otherwise.
func (rt *Runtime) Session() (*chatsvc.Session, error) {
	if dir := rt.Config.Conversation.Resume; dir != "" {
		return rt.OpenSession(dir)
	}
	return rt.NewSession()
}

// OpenSession resumes the conversation in dir. The stored preamble is kept
// even if the active persona changed since.
func (rt *Runtime) OpenSession(dir string) (*chatsvc.Session, error) {
	session, err := chatsvc.OpenSession(dir)
	if err != nil {
		return nil, fmt.Errorf("resume conversation %s: %w", dir, err)
	}
	if session.Log.Preamble() != rt.Preamble {
		logger.Warn("resumed conversation uses a different preamble than the active persona",
			"dir", dir, "persona", rt.Persona.ID)
	}
	logger.Info("conversation resumed", "dir", dir, "next_turn", session.Turns())
	return session, nil
}

// NewSession starts a conversation directory seeded with the persona preamble.
func (rt *Runtime) NewSession() (*chatsvc.Session, error) {
	return chatsvc.NewSession(rt.Config.Conversation.Dir, rt.Preamble, time.Now())
}

// NewOrchestrator wires a provider set to session.
func (rt *Runtime) NewOrchestrator(session *chatsvc.Session, set *provider.Set, observer turn.Observer) *turn.Orchestrator {
	return turn.NewOrchestrator(session, set.Transcriber, set.Generator, set.Synthesizer, turn.Options{
		MaxTTSChars: rt.Config.TTS.MaxChars,
		Observer:    observer,
	})
}
