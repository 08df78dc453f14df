package service

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"swarm-deploy/internal/pkg/logger"
	"swarm-deploy/internal/pkg/ssh"
)

type fakeSession struct {
	mu        sync.Mutex
	commands  []string
	uploads   map[string][]byte
	exitCodes map[string]int
	outputs   map[string]string
	execErrs  map[string]error
	uploadErr error
	sftpErr   error
	closed    int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		uploads:   map[string][]byte{},
		exitCodes: map[string]int{},
		outputs:   map[string]string{},
		execErrs:  map[string]error{},
	}
}

func (f *fakeSession) OpenSFTP() error {
	return f.sftpErr
}

func (f *fakeSession) ExecuteCommand(cmd string) (*ssh.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	for prefix, err := range f.execErrs {
		if strings.HasPrefix(cmd, prefix) {
			return nil, err
		}
	}
	res := &ssh.CommandResult{}
	for prefix, out := range f.outputs {
		if strings.HasPrefix(cmd, prefix) {
			res.Stdout = out
		}
	}
	for prefix, code := range f.exitCodes {
		if strings.HasPrefix(cmd, prefix) {
			res.ExitCode = code
		}
	}
	return res, nil
}

func (f *fakeSession) UploadFile(content []byte, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads[remotePath] = append([]byte(nil), content...)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSession) ran(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cmd := range f.commands {
		if strings.HasPrefix(cmd, prefix) {
			return true
		}
	}
	return false
}

type fakeFactory struct {
	mu      sync.Mutex
	session *fakeSession
	err     error
	configs []ssh.SSHConfig
}

func (f *fakeFactory) Connect(config ssh.SSHConfig) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, config)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeAsker struct {
	host, user, password string
	err                  error
	calls                []string
}

func (a *fakeAsker) AskHost() (string, error) {
	a.calls = append(a.calls, "host")
	return a.host, a.err
}

func (a *fakeAsker) AskUser() (string, error) {
	a.calls = append(a.calls, "user")
	return a.user, a.err
}

func (a *fakeAsker) AskPassword(user, host string) (string, error) {
	a.calls = append(a.calls, "password:"+user+"@"+host)
	return a.password, a.err
}

type recordingObserver struct {
	started  []string
	finished []string
}

func (o *recordingObserver) StepStarted(step string, index, total int) {
	o.started = append(o.started, step)
}

func (o *recordingObserver) StepFinished(step string, index, total int, err error) {
	o.finished = append(o.finished, step)
}

var errBoom = errors.New("boom")

const composeFile = `services:
  web:
    image: myapp:latest
`

func newProject(t *testing.T, fs afero.Fs, dir string, withCompose bool) {
	t.Helper()
	files := map[string]string{
		"Dockerfile":  "FROM alpine\n",
		"app/main.py": "print('hi')\n",
	}
	if withCompose {
		files["docker-compose.yml"] = composeFile
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := logger.NewLogger(logger.Options{Level: "info", Output: &buf, NoColor: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log, &buf
}
