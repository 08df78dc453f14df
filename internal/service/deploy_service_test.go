package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"swarm-deploy/internal/model"
	"swarm-deploy/internal/pkg/archive"
	"swarm-deploy/internal/pkg/ssh"
	"swarm-deploy/pkg/utils"
)

const (
	testUnix    = 1700000000
	testArchive = "/tmp/1700000000_app.tar.gz"
)

type deployFixture struct {
	fs       afero.Fs
	session  *fakeSession
	factory  *fakeFactory
	svc      *DeployService
	logs     *bytes.Buffer
	out      bytes.Buffer
	observer recordingObserver
	d        *model.Deployment
}

func newDeployFixture(t *testing.T, withCompose bool) *deployFixture {
	t.Helper()
	f := &deployFixture{fs: afero.NewMemMapFs(), session: newFakeSession()}
	newProject(t, f.fs, "/work/MyApp", withCompose)
	f.factory = &fakeFactory{session: f.session}

	log, logs := newTestLogger(t)
	f.logs = logs
	f.svc = NewDeployService(f.factory, f.fs, log, 5*time.Second)
	f.svc.now = func() time.Time { return time.Unix(testUnix, 0) }

	d, err := NewResolver(f.fs, &fakeAsker{password: "pw"}).Resolve(&model.DeployRequest{
		Host:       "10.0.0.5:2222",
		User:       "root",
		ProjectDir: "/work/MyApp",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	f.d = d
	return f
}

func (f *deployFixture) deploy() (*model.DeployResult, error) {
	return f.svc.Deploy(context.Background(), f.d, &f.out, &f.observer)
}

func TestDeploySuccess(t *testing.T) {
	f := newDeployFixture(t, true)
	f.session.outputs["docker build"] = "Successfully tagged myapp:latest"
	f.session.outputs["docker stack deploy"] = "Creating service myapp_web"

	result, err := f.deploy()
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	wantCommands := []string{
		"rm -rf /tmp/MyApp",
		"mkdir -p /tmp/MyApp && tar xzf " + testArchive + " -C /tmp/MyApp",
		"docker build -t myapp:latest /tmp/MyApp",
		"docker stack deploy -c /tmp/MyApp/docker-compose.yml myapp",
		"rm -f " + testArchive,
	}
	if diff := cmp.Diff(wantCommands, f.session.commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	data, ok := f.session.uploads[testArchive]
	if !ok {
		t.Fatalf("archive not uploaded to %s, uploads: %v", testArchive, f.session.uploads)
	}
	names, err := archive.List(data)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Dockerfile", "app/main.py", "docker-compose.yml"}, names); diff != "" {
		t.Errorf("archive entries mismatch (-want +got):\n%s", diff)
	}

	if len(f.factory.configs) != 1 {
		t.Fatalf("Connect called %d times, want 1", len(f.factory.configs))
	}
	cfg := f.factory.configs[0]
	want := ssh.SSHConfig{Host: "10.0.0.5", Port: 2222, Username: "root", AuthType: model.AuthPassword, Password: "pw", Timeout: 5 * time.Second}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("ssh config mismatch (-want +got):\n%s", diff)
	}
	if f.session.closed != 1 {
		t.Errorf("session closed %d times, want 1", f.session.closed)
	}

	if result.ArchivePath != testArchive || result.BuildExitCode != 0 || result.DeployExitCode != 0 {
		t.Errorf("result = %+v", result)
	}
	out := f.out.String()
	for _, s := range []string{"== Build output ==", "Successfully tagged myapp:latest", "== Deploy output ==", "Creating service myapp_web"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
	if !strings.Contains(f.logs.String(), "[SUCCESS] stack myapp deployed with image myapp:latest") {
		t.Errorf("missing success line in logs:\n%s", f.logs.String())
	}

	wantSteps := []string{"check-compose", "connect", "archive", "upload", "extract", "build", "deploy"}
	if diff := cmp.Diff(wantSteps, f.observer.finished); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestDeployBuildFailureSkipsStackDeploy(t *testing.T) {
	f := newDeployFixture(t, true)
	f.session.exitCodes["docker build"] = 1
	f.session.outputs["docker build"] = "failed to solve: dockerfile parse error"

	result, err := f.deploy()
	de, ok := utils.AsDeployError(err)
	if !ok {
		t.Fatalf("Deploy() error = %v, want a DeployError", err)
	}
	if de.Kind != utils.KindRemote || de.Step != "build" || de.ExitStatus != 1 {
		t.Errorf("error = %+v", de)
	}
	if !strings.Contains(err.Error(), "remote build failed, deploy aborted") {
		t.Errorf("error message = %q", err.Error())
	}
	if utils.ExitCode(err) != 1 {
		t.Errorf("ExitCode = %d, want 1", utils.ExitCode(err))
	}
	if f.session.ran("docker stack deploy") {
		t.Error("stack deploy ran after a failed build")
	}
	if !f.session.ran("rm -f " + testArchive) {
		t.Error("uploaded archive was not removed")
	}
	if f.session.closed != 1 {
		t.Errorf("session closed %d times, want 1", f.session.closed)
	}
	if result.BuildExitCode != 1 || !strings.Contains(f.out.String(), "dockerfile parse error") {
		t.Errorf("build output not reported: result=%+v out=%q", result, f.out.String())
	}
	if strings.Contains(f.logs.String(), "[SUCCESS]") {
		t.Errorf("unexpected success line:\n%s", f.logs.String())
	}
}

func TestDeployStackDeployFailure(t *testing.T) {
	f := newDeployFixture(t, true)
	f.session.exitCodes["docker stack deploy"] = 1

	_, err := f.deploy()
	de, ok := utils.AsDeployError(err)
	if !ok || de.Step != "deploy" || de.Message != "stack deploy failed" {
		t.Fatalf("Deploy() error = %#v", err)
	}
	if strings.Contains(f.logs.String(), "[SUCCESS]") {
		t.Errorf("unexpected success line:\n%s", f.logs.String())
	}
}

func TestDeployConnectionFailure(t *testing.T) {
	f := newDeployFixture(t, true)
	f.factory.err = errBoom

	_, err := f.deploy()
	de, ok := utils.AsDeployError(err)
	if !ok || de.Kind != utils.KindConnection {
		t.Fatalf("Deploy() error = %v, want a connection error", err)
	}
	// the project is never archived when the host is unreachable
	if diff := cmp.Diff([]string{"check-compose", "connect"}, f.observer.started); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	if len(f.session.commands) != 0 || len(f.session.uploads) != 0 {
		t.Errorf("remote activity after failed connect: %v", f.session.commands)
	}
}

func TestDeploySFTPFailureClosesSession(t *testing.T) {
	f := newDeployFixture(t, true)
	f.session.sftpErr = errBoom

	_, err := f.deploy()
	if de, ok := utils.AsDeployError(err); !ok || de.Kind != utils.KindConnection {
		t.Fatalf("Deploy() error = %v, want a connection error", err)
	}
	if f.session.closed != 1 {
		t.Errorf("session closed %d times, want 1", f.session.closed)
	}
}

func TestDeployUploadFailure(t *testing.T) {
	f := newDeployFixture(t, true)
	f.session.uploadErr = errBoom

	_, err := f.deploy()
	if de, ok := utils.AsDeployError(err); !ok || de.Kind != utils.KindTransfer {
		t.Fatalf("Deploy() error = %v, want a transfer error", err)
	}
	if len(f.session.commands) != 0 {
		t.Errorf("unexpected commands: %v", f.session.commands)
	}
	if f.session.closed != 1 {
		t.Errorf("session closed %d times, want 1", f.session.closed)
	}
}

func TestDeployExtractFailure(t *testing.T) {
	f := newDeployFixture(t, true)
	f.session.exitCodes["mkdir -p"] = 2
	f.session.outputs["mkdir -p"] = "tar: Error is not recoverable"

	_, err := f.deploy()
	de, ok := utils.AsDeployError(err)
	if !ok || de.Step != "extract" || de.ExitStatus != 2 {
		t.Fatalf("Deploy() error = %v", err)
	}
	if de.Details != "tar: Error is not recoverable" {
		t.Errorf("Details = %q", de.Details)
	}
	if f.session.ran("docker build") {
		t.Error("build ran after a failed extract")
	}
}

func TestDeployCommandTransportFailure(t *testing.T) {
	f := newDeployFixture(t, true)
	f.session.execErrs["docker build"] = errBoom

	_, err := f.deploy()
	de, ok := utils.AsDeployError(err)
	if !ok || de.Kind != utils.KindRemote || de.Step != "build" {
		t.Fatalf("Deploy() error = %v", err)
	}
	if f.session.ran("docker stack deploy") {
		t.Error("stack deploy ran after build could not start")
	}
}

func TestDeployComposeCheck(t *testing.T) {
	f := newDeployFixture(t, false)

	_, err := f.deploy()
	if de, ok := utils.AsDeployError(err); !ok || de.Kind != utils.KindValidation || de.Step != "check-compose" {
		t.Fatalf("Deploy() error = %v, want a compose validation error", err)
	}
	if len(f.factory.configs) != 0 {
		t.Error("connected despite a missing compose file")
	}

	f = newDeployFixture(t, false)
	f.d.CheckCompose = false
	if _, err := f.deploy(); err != nil {
		t.Fatalf("Deploy() without compose check error = %v", err)
	}
}

func TestDeployExtraTagsAndBuildOpts(t *testing.T) {
	f := newDeployFixture(t, true)
	f.d.ExtraImages = []string{"myapp:stable"}
	f.d.BuildOpts = []string{"--build-arg", "NAME=a b"}

	if _, err := f.deploy(); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	want := "docker build -t myapp:latest -t myapp:stable --build-arg 'NAME=a b' /tmp/MyApp"
	if !f.session.ran(want) {
		t.Errorf("build command not found, commands: %v", f.session.commands)
	}
}

func TestDeployCleanupFailureIsOnlyWarned(t *testing.T) {
	f := newDeployFixture(t, true)
	f.session.exitCodes["rm -f"] = 1

	if _, err := f.deploy(); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if !strings.Contains(f.logs.String(), "[WARN] could not remove "+testArchive) {
		t.Errorf("missing cleanup warning:\n%s", f.logs.String())
	}
}

const swarmComposeFile = `services:
  web:
    image: myapp:${TAG:-latest}
    ports:
      - "${PORT:-8080}:80"
    deploy:
      replicas: ${REPLICAS:-2}
      restart_policy:
        condition: on-failure
`

func TestDeployComposeFileWithVariables(t *testing.T) {
	f := newDeployFixture(t, true)
	if err := afero.WriteFile(f.fs, "/work/MyApp/docker-compose.yml", []byte(swarmComposeFile), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.deploy(); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if !f.session.ran("docker stack deploy -c /tmp/MyApp/docker-compose.yml myapp") {
		t.Errorf("stack deploy not run, commands: %v", f.session.commands)
	}
	if !strings.Contains(f.logs.String(), "defines services: [web]") {
		t.Errorf("compose file not validated:\n%s", f.logs.String())
	}
}

func TestDeployComposeVariableSetOnServerOnly(t *testing.T) {
	f := newDeployFixture(t, true)
	file := strings.Replace(swarmComposeFile, "${REPLICAS:-2}", "${SWARM_DEPLOY_TEST_REPLICAS:?set on the manager}", 1)
	if err := afero.WriteFile(f.fs, "/work/MyApp/docker-compose.yml", []byte(file), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.deploy(); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if !f.session.ran("docker stack deploy") {
		t.Errorf("stack deploy not run, commands: %v", f.session.commands)
	}
	if !strings.Contains(f.logs.String(), "[WARN] compose: docker-compose.yml could not be validated locally") {
		t.Errorf("missing compose warning:\n%s", f.logs.String())
	}
}
