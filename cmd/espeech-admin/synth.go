package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/espeech/espeech-api/config"
	"github.com/espeech/espeech-api/internal/bootstrap"
	"github.com/espeech/espeech-api/internal/domain/model"
)

const defaultSynthTimeout = 10 * time.Minute

type synthOptions struct {
	VoiceID  string
	Text     string
	TextFile string
	Format   string
	Speed    float64
	NFEStep  int
	Seed     int64
	Out      string
	Timeout  time.Duration
}

// request builds the synthesis request. Zero speed and nfe-step fall back to server defaults.
func (o synthOptions) request() *model.SynthesisRequest {
	req := &model.SynthesisRequest{
		VoiceID: o.VoiceID,
		Text:    o.Text,
		Format:  o.Format,
	}
	if o.Speed > 0 {
		req.Speed = &o.Speed
	}
	if o.NFEStep > 0 {
		req.NFEStep = &o.NFEStep
	}
	req.Seed = &o.Seed
	return req
}

func runSynth(cmdCtx *commandContext, args []string) error {
	opts, err := parseSynthFlags(args)
	if err != nil {
		return err
	}
	if opts.TextFile != "" {
		raw, readErr := os.ReadFile(opts.TextFile)
		if readErr != nil {
			return fmt.Errorf("read text file: %w", readErr)
		}
		opts.Text = string(raw)
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	// One-off synthesis needs only the catalog and engine.
	cfg := cmdCtx.Config
	cfg.Results.Backend = config.ResultBackendMemory
	cfg.History.Enabled = false
	cfg.Observability.Events.Enabled = false
	cfg.Observability.Notifications.Enabled = false

	svcs, err := bootstrap.NewServices(&bootstrap.ServiceDeps{Config: &cfg, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer svcs.Close(cmdCtx.Logger)

	start := time.Now()
	out, err := svcs.Synthesis.Stream(ctx, opts.request())
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	target := opts.Out
	if target == "" {
		target = out.Filename
	}
	if dir := filepath.Dir(target); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return fmt.Errorf("create output directory: %w", mkErr)
		}
	}
	if writeErr := os.WriteFile(target, out.Data, 0o644); writeErr != nil { //nolint:gosec // output audio is not sensitive
		return fmt.Errorf("write audio: %w", writeErr)
	}

	return writef(cmdCtx.Out, "Wrote %s (%d bytes, %s) in %s\n",
		target, len(out.Data), out.MimeType, time.Since(start).Round(time.Millisecond))
}

func parseSynthFlags(args []string) (synthOptions, error) {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := synthOptions{Timeout: defaultSynthTimeout, Seed: model.RandomSeed}
	fs.StringVar(&opts.VoiceID, "voice", "", "Voice id (required)")
	fs.StringVar(&opts.Text, "text", "", "Text to synthesize")
	fs.StringVar(&opts.TextFile, "text-file", "", "Read the text to synthesize from a file")
	fs.StringVar(&opts.Format, "format", string(model.AudioFormatWAV), "Output format (wav, mp3)")
	fs.Float64Var(&opts.Speed, "speed", 0, "Speech speed (0 uses the server default)")
	fs.IntVar(&opts.NFEStep, "nfe-step", 0, "Inference steps (0 uses ESPEECH_DEFAULT_NFE_STEP)")
	fs.Int64Var(&opts.Seed, "seed", model.RandomSeed, "Random seed (-1 picks one)")
	fs.StringVar(&opts.Out, "out", "", "Output path (defaults to <voice>_stream.<ext>)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultSynthTimeout, "Maximum duration for the synthesis")

	if err := fs.Parse(args); err != nil {
		return synthOptions{}, err
	}

	opts.VoiceID = strings.TrimSpace(opts.VoiceID)
	opts.Format = strings.ToLower(strings.TrimSpace(opts.Format))

	switch {
	case opts.VoiceID == "":
		return synthOptions{}, errors.New("--voice is required")
	case opts.Text != "" && opts.TextFile != "":
		return synthOptions{}, errors.New("--text and --text-file are mutually exclusive")
	case strings.TrimSpace(opts.Text) == "" && opts.TextFile == "":
		return synthOptions{}, errors.New("--text or --text-file is required")
	case opts.Format != string(model.AudioFormatWAV) && opts.Format != string(model.AudioFormatMP3):
		return synthOptions{}, fmt.Errorf("unsupported --format %q (valid options: wav, mp3)", opts.Format)
	case opts.Speed < 0:
		return synthOptions{}, errors.New("--speed must not be negative")
	case opts.Timeout <= 0:
		return synthOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}
