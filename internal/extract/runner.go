package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner lets tests stub the external poppler and tesseract binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
	LookPath(name string) (string, error)
}

type execRunner struct{}

// ExecRunner returns a Runner that executes real binaries.
func ExecRunner() Runner {
	return execRunner{}
}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		zap.L().Debug("extract: command failed",
			zap.String("cmd", name),
			zap.String("args", strings.Join(args, " ")),
			zap.Duration("duration", time.Since(start)),
			zap.String("stderr", truncate(errb.String(), 8<<10)),
			zap.Error(err),
		)
	} else {
		zap.L().Debug("extract: command ok",
			zap.String("cmd", name),
			zap.Duration("duration", time.Since(start)),
			zap.Int("stdout_bytes", out.Len()),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
