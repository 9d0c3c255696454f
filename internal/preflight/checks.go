package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"rematrix/internal/config"
	"rematrix/internal/deps"
	"rematrix/internal/media"
	"rematrix/internal/services/llm"
)

// minWorkspaceBytes is the free space below which render and merge would
// refuse to write frames anyway.
const minWorkspaceBytes = 256 << 20

// CheckLLM verifies that the chat completion API is reachable and the key is
// valid. It uses a 30-second timeout and a single attempt.
func CheckLLM(ctx context.Context, cfg *config.Config) Result {
	const name = "LLM API"

	if cfg.LLM.APIKey == "" {
		return Result{Name: name, Detail: "API key missing (set llm.api_key or LLM_API_KEY)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(cfg.LLM)
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckWorkspaceSpace verifies the work directory has room for frames and
// rendered video.
func CheckWorkspaceSpace(path string) Result {
	const name = "Workspace free space"

	if err := media.CheckFreeSpace(path, minWorkspaceBytes); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckSystemDeps evaluates the external tools the media stages shell out to.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	chromium, err := media.ResolveChromium(cfg)
	if err != nil {
		chromium = cfg.Render.ChromiumBinary
		if chromium == "" {
			chromium = "chromium"
		}
	}

	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for audio synthesis and video merge",
		},
		{
			Name:        "Chromium",
			Command:     chromium,
			Description: "Required for page rendering",
		},
	})
}

func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
