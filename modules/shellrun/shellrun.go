// Package shellrun provides the external-command transform runner. The
// warehouse handle is closed before the command runs so the subprocess can
// open the database file itself, then reopened and handed back.
package shellrun

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/errdefs"
	"github.com/vk/stagecraft/internal/registry"
)

// Module registers the runner.
type Module struct{}

func (Module) Register(r *registry.Registry) { r.RegisterRunner(&Runner{}) }

// Runner executes one external command per job. Options:
//   - "command": the executable (required)
//   - "args": argument list
//   - "dir": working directory
//   - "env": extra environment entries; resolved pipeline variables are
//     exported as well
type Runner struct{}

func (r *Runner) Name() string { return "shell" }

func (r *Runner) CanHandle(cfg map[string]any) bool {
	return config.String(config.Map(cfg, "options"), "command") != ""
}

func (r *Runner) Run(ctx context.Context, rc *registry.RunContext, cfg map[string]any) error {
	logger := ctxlog.FromContext(ctx)
	opts := config.Map(cfg, "options")

	command := config.String(opts, "command")
	if command == "" {
		return errdefs.Configf("shell runner: missing required option: command")
	}
	args := config.StringSlice(opts, "args")

	// Release the warehouse so the subprocess gets exclusive access to the
	// database file.
	if rc.DB != nil && rc.Engine != nil {
		if err := rc.Engine.Close(rc.DB); err != nil {
			return errors.Wrap(err, "close warehouse before command")
		}
		rc.DB = nil
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = config.String(opts, "dir")
	cmd.Env = buildEnv(opts, rc.Params)

	logger.Info("running command", "command", command, "args", strings.Join(args, " "))
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		logger.Debug("command output", "output", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return errors.Wrapf(err, "command %q failed: %s", command, lastLine(out))
	}

	if rc.Engine != nil && rc.DatabaseConfig != nil {
		db, err := rc.Engine.Connect(ctx, rc.DatabaseConfig)
		if err != nil {
			return errors.Wrap(err, "reopen warehouse after command")
		}
		rc.DB = db
	}
	logger.Info("command finished", "command", command)
	return nil
}

func buildEnv(opts map[string]any, params map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+params[k])
	}
	for k, v := range config.Map(opts, "env") {
		env = append(env, k+"="+fmt.Sprint(v))
	}
	return env
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
