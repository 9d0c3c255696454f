package generation

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"rematrix/internal/config"
	"rematrix/internal/logging"
	"rematrix/internal/media"
	"rematrix/internal/services"
	"rematrix/internal/stage"
)

// ttsGenerator synthesizes the narration audio track. The current provider
// is silent mp3 sized from the narration page count; swapping in a real
// voice backend only changes this generator.
type ttsGenerator struct {
	cfg    *config.Config
	ffmpeg *media.FFmpeg
	logger *slog.Logger
}

func newTTSGenerator(cfg *config.Config, runner media.CommandRunner, logger *slog.Logger) *ttsGenerator {
	return &ttsGenerator{
		cfg:    cfg,
		ffmpeg: media.NewFFmpeg(cfg, runner),
		logger: logging.NewComponentLogger(logger, "generation"),
	}
}

func (g *ttsGenerator) Generate(ctx context.Context, in stage.Input) (*stage.Output, error) {
	var narration NarrationDoc
	if err := json.Unmarshal(in.Upstream[stage.Narration], &narration); err != nil {
		return nil, services.Wrap(services.ErrValidation, string(stage.TTS), "decode narration", "", err)
	}

	pageCount := len(narration.Pages)
	secondsPerPage := g.cfg.TTS.SecondsPerPage
	if secondsPerPage <= 0 {
		secondsPerPage = 8
	}
	duration := float64(max(pageCount, 1) * secondsPerPage)
	sampleRate := g.cfg.TTS.SampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}

	dir, err := jobWorkDir(g.cfg, in.JobID)
	if err != nil {
		return nil, err
	}
	audioPath := filepath.Join(dir, "tts.mp3")
	if err := g.ffmpeg.SilentAudio(ctx, audioPath, duration, sampleRate); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, string(stage.TTS), "read audio", audioPath, err)
	}

	content, err := json.Marshal(AudioDescriptor{
		Format:      "mp3",
		DurationSec: duration,
		PageCount:   pageCount,
		SampleRate:  sampleRate,
		AudioPath:   audioPath,
	})
	if err != nil {
		return nil, err
	}
	return &stage.Output{
		Content:     content,
		Payload:     data,
		ContentType: "audio/mpeg",
		Ext:         ".mp3",
	}, nil
}

// jobWorkDir returns the per-job workspace directory, creating it on first
// use. Paths under it are deterministic so resumed jobs find earlier output.
func jobWorkDir(cfg *config.Config, jobID string) (string, error) {
	dir := filepath.Join(cfg.Paths.WorkDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "workspace", dir, err)
	}
	return dir, nil
}
