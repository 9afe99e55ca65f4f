// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/pkgbake/pkgbake/pkg/makeconf"
	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

// AgentBackend runs makepkg.conf DLAGENTS commands for one protocol.
// Agents cannot resume: every attempt starts from an empty part.
type AgentBackend struct {
	agent  makeconf.DLAgent
	stderr *os.File
}

// NewAgentBackend creates a backend running agent.
func NewAgentBackend(agent makeconf.DLAgent) *AgentBackend {
	return &AgentBackend{agent: agent, stderr: os.Stderr}
}

// Fetch runs the agent with %u set to the URL and %o to partPath.
func (b *AgentBackend) Fetch(ctx context.Context, src pkgbuild.SourceEntry, partPath string) (int64, error) {
	args := b.agent.Expand(src.URL, partPath)
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: empty agent for %s", ErrUnsupportedProtocol, b.agent.Protocol)
	}

	out, err := os.Create(partPath)
	if err != nil {
		return 0, err
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = b.stderr
	if b.agent.WritesStdout() {
		cmd.Stdout = out
	}
	runErr := cmd.Run()
	if err := out.Close(); runErr == nil {
		runErr = err
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return 0, fmt.Errorf("%s agent exited with status %d", b.agent.Protocol, exitErr.ExitCode())
		}
		return 0, runErr
	}

	info, err := os.Stat(partPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
