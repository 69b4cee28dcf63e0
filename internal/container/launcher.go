package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/your-org/clipline/internal/config"
)

// ProcessLauncher runs the media backend as a local child process.
type ProcessLauncher struct {
	command string
	args    []string
	env     []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewProcessLauncher(command string, args, env []string) *ProcessLauncher {
	return &ProcessLauncher{command: command, args: args, env: env}
}

func (l *ProcessLauncher) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != nil {
		return nil
	}
	if l.command == "" {
		return fmt.Errorf("no container command configured")
	}

	cmd := exec.Command(l.command, l.args...)
	cmd.Env = append(os.Environ(), l.env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", l.command, err)
	}
	l.cmd = cmd
	slog.Info("container process started", "command", l.command, "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		l.cmd = nil
		l.mu.Unlock()
		slog.Warn("container process exited", "command", l.command, "error", err)
	}()

	return nil
}

func (l *ProcessLauncher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmd != nil
}

// ProcessEnv builds the environment injected into the backing process.
// This is the only place secrets cross the process boundary.
func ProcessEnv(cfg *config.Config) []string {
	return []string{
		"OPENAI_API_KEY=" + cfg.OpenAI.APIKey,
		"STORAGE_ENDPOINT=" + cfg.Storage.Endpoint,
		"STORAGE_ACCESS_KEY=" + cfg.Storage.AccessKey,
		"STORAGE_SECRET_KEY=" + cfg.Storage.SecretKey,
		"BUCKET_NAME=" + cfg.Storage.Bucket,
		"WEBHOOK_SECRET=" + cfg.Webhook.Secret,
		"DATABASE_URL=" + cfg.Database.DSN(),
	}
}
