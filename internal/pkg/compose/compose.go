// Package compose checks a project's stack file locally before anything is
// changed on the remote host.
package compose

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	DefaultFile = "docker-compose.yml"
	Dockerfile  = "Dockerfile"
)

type Summary struct {
	File          string
	Services      []string
	HasDockerfile bool
	// Partial is set when the file references variables that are not set
	// locally and could only be validated once docker substitutes them on
	// the server. Services is empty in that case.
	Partial bool
	// Warnings holds what the compose loader reported while loading.
	Warnings []string
}

// Check parses <projectDir>/docker-compose.yml with variables substituted
// from the local environment, so "${PORT:-8080}" style defaults apply.
func Check(ctx context.Context, fs afero.Fs, projectDir, stack string) (*Summary, error) {
	path := filepath.Join(projectDir, DefaultFile)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s not found in %s", DefaultFile, projectDir)
		}
		return nil, fmt.Errorf("read compose file %s: %w", path, err)
	}

	hasDockerfile, err := afero.Exists(fs, filepath.Join(projectDir, Dockerfile))
	if err != nil {
		return nil, err
	}
	summary := &Summary{File: path, HasDockerfile: hasDockerfile}

	env := make(composetypes.Mapping)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[key] = value
	}

	details := composetypes.ConfigDetails{
		WorkingDir:  projectDir,
		ConfigFiles: []composetypes.ConfigFile{{Filename: path, Content: data}},
		Environment: env,
	}

	var project *composetypes.Project
	summary.Warnings = captureWarnings(func() {
		project, err = loader.LoadWithContext(ctx, details, func(o *loader.Options) {
			o.SkipResolveEnvironment = true
			o.SetProjectName(loader.NormalizeProjectName(stack), true)
		})
	})
	if err != nil {
		if referencesVariables(data) {
			summary.Partial = true
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s could not be validated locally: %v", DefaultFile, err))
			return summary, nil
		}
		return nil, fmt.Errorf("invalid %s: %w", DefaultFile, err)
	}

	summary.Services = project.ServiceNames()
	if len(summary.Services) == 0 {
		return nil, fmt.Errorf("%s defines no services", DefaultFile)
	}
	return summary, nil
}

func referencesVariables(data []byte) bool {
	return strings.Contains(string(data), "$")
}

// compose-go reports through the global logrus logger
var logrusMu sync.Mutex

type warningHook struct {
	messages []string
}

func (h *warningHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *warningHook) Fire(entry *logrus.Entry) error {
	h.messages = append(h.messages, entry.Message)
	return nil
}

// captureWarnings runs fn with logrus output silenced and returns the
// warnings it logged.
func captureWarnings(fn func()) []string {
	logrusMu.Lock()
	defer logrusMu.Unlock()

	std := logrus.StandardLogger()
	hook := &warningHook{}
	out := std.Out
	hooks := std.ReplaceHooks(logrus.LevelHooks{})
	std.AddHook(hook)
	std.SetOutput(io.Discard)
	defer func() {
		std.SetOutput(out)
		std.ReplaceHooks(hooks)
	}()

	fn()
	return hook.messages
}
