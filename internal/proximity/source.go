package proximity

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// PositionSource provides position fixes. CommandSource and FileSource
// implement it; tests can provide their own.
type PositionSource interface {
	Read(ctx context.Context) (Fix, error)
}

// CommandSource runs an external command that prints NMEA sentences,
// e.g. ["gpspipe", "-r", "-n", "8"].
type CommandSource struct {
	Command []string
}

var _ PositionSource = (*CommandSource)(nil)

// Read runs the command and parses the first RMC fix from its output.
func (c *CommandSource) Read(ctx context.Context) (Fix, error) {
	if len(c.Command) == 0 {
		return Fix{}, fmt.Errorf("no position command configured")
	}
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return Fix{}, fmt.Errorf("%s: %s", c.Command[0], errMsg)
	}
	return ParseOutput(stdout.String())
}

// FileSource reads NMEA sentences from a file that another process keeps
// current (a log written by gpsd or a receiver bridge).
type FileSource struct {
	Path string
}

var _ PositionSource = (*FileSource)(nil)

// Read parses the most recent RMC fix in the file.
func (f *FileSource) Read(_ context.Context) (Fix, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Fix{}, fmt.Errorf("read position file: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !isRMC(line) {
			continue
		}
		if fix, err := ParseRMC(line); err == nil {
			return fix, nil
		}
	}
	return Fix{}, fmt.Errorf("no valid RMC sentence in %s", f.Path)
}

// CheckCommand verifies that the position command is installed.
func CheckCommand(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("no position command configured")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return fmt.Errorf("position command %q not found in PATH", command[0])
	}
	return nil
}
