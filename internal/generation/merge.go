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

// mergeGenerator muxes the rendered frames and the narration track into the
// final mp4. A missing audio file degrades to a silent video rather than
// failing the job.
type mergeGenerator struct {
	cfg    *config.Config
	ffmpeg *media.FFmpeg
	logger *slog.Logger
}

func newMergeGenerator(cfg *config.Config, runner media.CommandRunner, logger *slog.Logger) *mergeGenerator {
	return &mergeGenerator{
		cfg:    cfg,
		ffmpeg: media.NewFFmpeg(cfg, runner),
		logger: logging.NewComponentLogger(logger, "generation"),
	}
}

func (g *mergeGenerator) Generate(ctx context.Context, in stage.Input) (*stage.Output, error) {
	var render RenderDescriptor
	if err := json.Unmarshal(in.Upstream[stage.Render], &render); err != nil {
		return nil, services.Wrap(services.ErrValidation, string(stage.Merge), "decode render output", "", err)
	}
	if render.FrameCount == 0 || render.FrameDir == "" {
		return nil, services.Wrap(services.ErrValidation, string(stage.Merge), "decode render output", "no frames recorded", nil)
	}

	var audio AudioDescriptor
	if raw, ok := in.Upstream[stage.TTS]; ok {
		if err := json.Unmarshal(raw, &audio); err != nil {
			return nil, services.Wrap(services.ErrValidation, string(stage.Merge), "decode audio output", "", err)
		}
	}
	audioPath := audio.AudioPath
	if audioPath != "" {
		if _, err := os.Stat(audioPath); err != nil {
			logging.WithContext(ctx, g.logger).Warn("audio track missing, merging without sound",
				logging.String("audio_path", audioPath),
				logging.Error(err))
			audioPath = ""
		}
	}

	dir, err := jobWorkDir(g.cfg, in.JobID)
	if err != nil {
		return nil, err
	}
	if err := media.CheckFreeSpace(dir, minRenderFreeBytes); err != nil {
		return nil, err
	}

	videoPath := filepath.Join(dir, "video.mp4")
	err = g.ffmpeg.FramesToVideo(ctx, media.MergeOptions{
		FramePattern:    filepath.Join(render.FrameDir, "frame-%03d.png"),
		AudioPath:       audioPath,
		OutputPath:      videoPath,
		FrameRate:       g.cfg.Merge.FrameRate,
		SecondsPerFrame: float64(g.cfg.Merge.SecondsPerFrame),
	})
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(videoPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, string(stage.Merge), "read video", videoPath, err)
	}

	durationSec := float64(render.FrameCount * g.cfg.Merge.SecondsPerFrame)
	content, err := json.Marshal(VideoDescriptor{
		Format:      "mp4",
		DurationSec: durationSec,
		FrameCount:  render.FrameCount,
		HasAudio:    audioPath != "",
		VideoPath:   videoPath,
	})
	if err != nil {
		return nil, err
	}
	return &stage.Output{
		Content:     content,
		Payload:     data,
		ContentType: "video/mp4",
		Ext:         ".mp4",
	}, nil
}
