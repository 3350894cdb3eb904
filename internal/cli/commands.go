// Package cli implements the zvoice command-line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
	"github.com/zhouzirui/z-voice/internal/bootstrap"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/model/speech"
	chatsvc "github.com/zhouzirui/z-voice/internal/service/chat"
	"github.com/zhouzirui/z-voice/internal/service/provider"
	"github.com/zhouzirui/z-voice/internal/service/textproc"
	"github.com/zhouzirui/z-voice/internal/service/turn"
)

// App carries the global flags shared by every command.
type App struct {
	out      io.Writer
	envFiles []string
	plain    bool
	ports    func(context.Context, *bootstrap.Runtime) (*provider.Set, error)
}

// NewApp creates the CLI application writing to out.
func NewApp(out io.Writer) *App {
	return &App{out: out, ports: buildPorts}
}

func buildPorts(ctx context.Context, rt *bootstrap.Runtime) (*provider.Set, error) {
	return rt.Registry.Build(ctx)
}

// CreateRootCommand builds the command tree.
func (app *App) CreateRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zvoice",
		Short: "Turn-based voice chat with a role-playing persona",
		Long: `zvoice runs voice turns against the configured transcription, generation and
synthesis providers, and inspects conversations written by the server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			bootstrap.LoadEnv(app.envFiles...)
		},
	}
	rootCmd.SetOut(app.out)

	rootCmd.PersistentFlags().StringSliceVar(&app.envFiles, "env", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().BoolVar(&app.plain, "plain", false, "disable terminal styling of replies")

	rootCmd.AddCommand(
		app.turnCommand(),
		app.replayCommand(),
		app.reprocessCommand(),
		app.transcribeCommand(),
		app.synthesizeCommand(),
	)
	return rootCmd
}

func (app *App) renderer() (*Renderer, error) {
	return NewRenderer(app.out, app.plain)
}

func readRecording(path string) (speech.Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return speech.Recording{}, err
	}
	rec, err := speech.DecodeWAV(data)
	if err != nil {
		return speech.Recording{}, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

func (app *App) turnCommand() *cobra.Command {
	var resume string
	cmd := &cobra.Command{
		Use:   "turn <file.wav>...",
		Short: "Run one turn per WAV file in a new or resumed conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap.Load()
			if err != nil {
				return err
			}
			if resume != "" {
				rt.Config.Conversation.Resume = resume
			}
			set, err := app.ports(ctx, rt)
			if err != nil {
				return err
			}
			session, err := rt.Session()
			if err != nil {
				return err
			}
			render, err := app.renderer()
			if err != nil {
				return err
			}

			states := logger.WithPrefix("[state]")
			worker := turn.NewWorker(rt.NewOrchestrator(session, set, func(e turn.Event) {
				states.Debug(e.State.String(), "turn", e.Turn, "reason", e.Reason)
			}))
			defer worker.Close()

			fmt.Fprintf(app.out, "%s %s\n", dimStyle.Render("session"), session.Dir)
			for _, path := range args {
				rec, err := readRecording(path)
				if err != nil {
					return err
				}
				res, err := worker.Run(ctx, rec)
				if err != nil {
					return err
				}
				render.Result(res)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "continue the conversation in this directory (overrides CONVERSATION_RESUME)")
	return cmd
}

func historyPath(dir string) string {
	if filepath.Base(dir) == chatsvc.HistoryFile {
		return dir
	}
	return filepath.Join(dir, chatsvc.HistoryFile)
}

func (app *App) replayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <conversation-dir>",
		Short: "Pretty-print a persisted conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := chatsvc.LoadLog(historyPath(args[0]))
			if err != nil {
				return err
			}
			render, err := app.renderer()
			if err != nil {
				return err
			}
			for i, rec := range log.Records() {
				render.Record(i, rec)
			}
			return nil
		},
	}
}

// rederive 从 content_raw 重新计算派生字段。
func rederive(raw string) (string, string, *emotion.Label) {
	res := textproc.Process(raw)
	return res.UI, res.TTS, res.Expression
}

func (app *App) reprocessCommand() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "reprocess <conversation-dir>",
		Short: "Re-derive display text, speech text and expression from raw replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := chatsvc.LoadLog(historyPath(args[0]))
			if err != nil {
				return err
			}
			changed := log.Rederive(rederive)
			fmt.Fprintf(app.out, "%d assistant record(s) changed\n", changed)
			if !write || changed == 0 {
				return nil
			}
			if err := log.Persist(); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "wrote %s\n", log.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "persist the re-derived records")
	return cmd
}

func (app *App) transcribeCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Run only the transcription provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap.Load()
			if err != nil {
				return err
			}
			if name == "" {
				name = rt.Config.Providers.STT
			}
			transcriber, err := rt.Registry.Transcription(name)
			if err != nil {
				return err
			}
			rec, err := readRecording(args[0])
			if err != nil {
				return err
			}
			text, err := transcriber.Transcribe(cmd.Context(), rec)
			if err != nil {
				return err
			}
			fmt.Fprintln(app.out, strings.TrimSpace(text))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "provider", "", "transcription provider (default STT_PROVIDER)")
	return cmd
}

func (app *App) synthesizeCommand() *cobra.Command {
	var (
		name   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "synthesize <text>",
		Short: "Run only the synthesis provider and save the audio",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap.Load()
			if err != nil {
				return err
			}
			if name == "" {
				name = rt.Config.Providers.TTS
			}
			synth, err := rt.Registry.Synthesis(cmd.Context(), name)
			if err != nil {
				return err
			}
			if synth == nil {
				return errors.New("synthesis is disabled (TTS_PROVIDER=none)")
			}
			audio, err := synth.Synthesize(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if audio.Empty() {
				return errors.New("provider returned no audio")
			}
			path := output
			if path == "" {
				path = "out." + audio.Extension()
			}
			if err := os.WriteFile(path, audio.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "wrote %d bytes to %s\n", len(audio.Data), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "provider", "", "synthesis provider (default TTS_PROVIDER)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default out.<format>)")
	return cmd
}

// Execute runs the CLI with ctx and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewApp(os.Stdout).CreateRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
