package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"rematrix/internal/services"
)

// CommandRunner abstracts external tool invocation so wrappers can be tested
// without ffmpeg or a browser on the machine.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

// NewRunner returns the production runner backed by exec.CommandContext.
func NewRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return output, services.Wrap(services.ErrTimeout, "", name, "interrupted", ctx.Err())
		}
		detail := strings.TrimSpace(string(output))
		if len(detail) > 400 {
			detail = detail[len(detail)-400:]
		}
		return output, services.Wrap(services.ErrExternalTool, "", name,
			fmt.Sprintf("%v: %s", err, detail), nil)
	}
	return output, nil
}
