package media

import (
	"context"
	"fmt"
	"strconv"

	"rematrix/internal/config"
)

// FFmpeg wraps the ffmpeg binary for the audio and merge stages.
type FFmpeg struct {
	binary string
	runner CommandRunner
}

// NewFFmpeg builds an ffmpeg wrapper using the binary from config.
func NewFFmpeg(cfg *config.Config, runner CommandRunner) *FFmpeg {
	if runner == nil {
		runner = NewRunner()
	}
	return &FFmpeg{binary: cfg.FFmpegBinary(), runner: runner}
}

// SilentAudio writes an MP3 of silence with the given duration and sample
// rate. Used as the narration track until a real voice backend is wired in.
func (f *FFmpeg) SilentAudio(ctx context.Context, outputPath string, seconds float64, sampleRate int) error {
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", sampleRate),
		"-t", strconv.FormatFloat(seconds, 'f', -1, 64),
		"-q:a", "9",
		"-acodec", "libmp3lame",
		outputPath,
	}
	_, err := f.runner.Run(ctx, f.binary, args...)
	return err
}

// MergeOptions controls FramesToVideo.
type MergeOptions struct {
	FramePattern    string // e.g. /work/frames/frame-%03d.png
	AudioPath       string // optional narration track
	OutputPath      string
	FrameRate       int     // output video frame rate
	SecondsPerFrame float64 // how long each still is shown
}

// FramesToVideo assembles numbered still frames (and an optional audio
// track) into an H.264 MP4.
func (f *FFmpeg) FramesToVideo(ctx context.Context, opts MergeOptions) error {
	inputRate := 1.0
	if opts.SecondsPerFrame > 0 {
		inputRate = 1 / opts.SecondsPerFrame
	}
	frameRate := opts.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	args := []string{
		"-y",
		"-framerate", strconv.FormatFloat(inputRate, 'f', -1, 64),
		"-i", opts.FramePattern,
	}
	if opts.AudioPath != "" {
		args = append(args, "-i", opts.AudioPath)
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(frameRate),
	)
	if opts.AudioPath != "" {
		args = append(args, "-c:a", "aac", "-shortest")
	}
	args = append(args, opts.OutputPath)

	_, err := f.runner.Run(ctx, f.binary, args...)
	return err
}
