package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// ShellConfig names a command that receives every change set as JSON on
// stdin.
type ShellConfig struct {
	Command string `yaml:"command"`
}

type shellTarget struct {
	command string
}

// NewShell returns a Target running cfg.Command through sh, or nil when no
// command is configured.
func NewShell(cfg ShellConfig) Target {
	cmd := strings.TrimSpace(cfg.Command)
	if cmd == "" {
		return nil
	}
	return &shellTarget{command: cmd}
}

func (s *shellTarget) ApplyChanges(ctx context.Context, changes ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}

	payload, err := json.Marshal(changes)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", s.command)
	cmd.Stdin = bytes.NewReader(payload)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("shell target failed: %w: %s", err, string(output))
	}

	return nil
}
