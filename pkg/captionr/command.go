package captionr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command runs an external captioning program, such as a BLIP or GIT script.
// The program's standard output is the answer.
type Command struct {
	args []string
}

// NewCommand returns a Command for spec.Command.
func NewCommand(spec BackendSpec) (*Command, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("command backend requires a command")
	}
	return &Command{args: spec.Command}, nil
}

// Prompt implements Prompter.
func (c *Command) Prompt(ctx context.Context, prompt string, img *Image) (string, error) {
	r := strings.NewReplacer("{image}", img.Path, "{prompt}", prompt)
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = r.Replace(a)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
