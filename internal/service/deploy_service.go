package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"swarm-deploy/internal/model"
	"swarm-deploy/internal/pkg/archive"
	"swarm-deploy/internal/pkg/compose"
	"swarm-deploy/internal/pkg/logger"
	"swarm-deploy/internal/pkg/ssh"
	"swarm-deploy/pkg/utils"
)

// Session is an open remote session with its file transfer channel.
type Session interface {
	OpenSFTP() error
	ExecuteCommand(cmd string) (*ssh.CommandResult, error)
	UploadFile(content []byte, remotePath string) error
	Close() error
}

type SessionFactory interface {
	Connect(config ssh.SSHConfig) (Session, error)
}

type sshSessionFactory struct{}

func NewSSHSessionFactory() SessionFactory {
	return sshSessionFactory{}
}

func (sshSessionFactory) Connect(config ssh.SSHConfig) (Session, error) {
	client := ssh.NewClient(config)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

// StepObserver is told about each step of a deployment as it runs.
type StepObserver interface {
	StepStarted(step string, index, total int)
	StepFinished(step string, index, total int, err error)
}

type DeployService struct {
	sessions       SessionFactory
	fs             afero.Fs
	logger         *logger.Logger
	connectTimeout time.Duration
	now            func() time.Time
}

func NewDeployService(sessions SessionFactory, fs afero.Fs, logger *logger.Logger, connectTimeout time.Duration) *DeployService {
	return &DeployService{
		sessions:       sessions,
		fs:             fs,
		logger:         logger,
		connectTimeout: connectTimeout,
		now:            time.Now,
	}
}

func sshConfig(t model.Target, timeout time.Duration) ssh.SSHConfig {
	return ssh.SSHConfig{
		Host:       t.Hostname,
		Port:       t.Port,
		Username:   t.User,
		AuthType:   t.AuthType,
		Password:   t.Password,
		PrivateKey: t.PrivateKey,
		Passphrase: t.Passphrase,
		Timeout:    timeout,
	}
}

// deployRun carries the state of one deployment between steps.
type deployRun struct {
	s       *DeployService
	ctx     context.Context
	d       *model.Deployment
	out     io.Writer
	session Session
	payload *archive.Archive
	tmpPath string
	result  *model.DeployResult
}

// Deploy runs the deployment steps in order and stops at the first failure.
// The remote session is closed on every path; nothing is rolled back. Build
// and deploy output is written to out.
func (s *DeployService) Deploy(ctx context.Context, d *model.Deployment, out io.Writer, observer StepObserver) (*model.DeployResult, error) {
	if out == nil {
		out = io.Discard
	}
	run := &deployRun{
		s:   s,
		ctx: ctx,
		d:   d,
		out: out,
		result: &model.DeployResult{
			Stack:     d.Stack,
			Image:     d.Image,
			RemoteDir: d.RemoteDir,
		},
	}
	defer run.close()

	type step struct {
		name   string
		action func() error
	}
	var steps []step
	if d.CheckCompose {
		steps = append(steps, step{"check-compose", run.checkCompose})
	}
	steps = append(steps,
		step{"connect", run.connect},
		step{"archive", run.archive},
		step{"upload", run.upload},
		step{"extract", run.extract},
		step{"build", run.build},
		step{"deploy", run.deploy},
	)

	for i, st := range steps {
		s.logger.DeploymentStep(st.name, d.Stack)
		if observer != nil {
			observer.StepStarted(st.name, i, len(steps))
		}
		err := st.action()
		if observer != nil {
			observer.StepFinished(st.name, i, len(steps), err)
		}
		if err != nil {
			s.logger.DeploymentError(st.name, err)
			return run.result, err
		}
		s.logger.DeploymentSuccess(st.name)
	}

	s.logger.Success(fmt.Sprintf("stack %s deployed with image %s", d.Stack, d.Image))
	return run.result, nil
}

func (r *deployRun) checkCompose() error {
	summary, err := compose.Check(r.ctx, r.s.fs, r.d.ProjectDir, r.d.Stack)
	if err != nil {
		de := utils.NewValidationErrorf("compose file", err)
		de.Step = "check-compose"
		return de
	}
	for _, w := range summary.Warnings {
		r.s.logger.Warnf("compose: %s", w)
	}
	if !summary.HasDockerfile {
		r.s.logger.Warnf("no %s in %s, the remote build will probably fail", compose.Dockerfile, r.d.ProjectDir)
	}
	if !summary.Partial {
		r.s.logger.Infof("%s defines services: %v", compose.DefaultFile, summary.Services)
	}
	return nil
}

func (r *deployRun) connect() error {
	t := r.d.Target
	r.s.logger.SSHConnectionAttempt(ssh.JoinHostPort(t.Hostname, t.Port), t.User)

	session, err := r.s.sessions.Connect(sshConfig(t, r.s.connectTimeout))
	if err != nil {
		return utils.NewConnectionError(err)
	}
	r.session = session

	if err := session.OpenSFTP(); err != nil {
		return utils.NewConnectionError(err)
	}
	return nil
}

func (r *deployRun) archive() error {
	payload, err := archive.Build(r.s.fs, r.d.ProjectDir, archive.Options{RespectIgnoreFile: r.d.RespectDockerignore})
	if err != nil {
		return utils.NewArchiveError(err)
	}
	r.payload = payload
	r.result.ArchiveSize = payload.Size()
	r.result.ArchiveFiles = len(payload.Files)
	r.s.logger.Infof("archived %d files (%d bytes)", len(payload.Files), payload.Size())
	return nil
}

func (r *deployRun) upload() error {
	path := archivePath(r.s.now().Unix())
	r.s.logger.Infof("uploading project as %s ...", path)
	if err := r.session.UploadFile(r.payload.Data, path); err != nil {
		return utils.NewTransferError(err)
	}
	r.tmpPath = path
	r.result.ArchivePath = path
	r.s.logger.Info("archive uploaded")
	return nil
}

func (r *deployRun) extract() error {
	if _, err := r.exec("clean", removeDirCommand(r.d.RemoteDir), true); err != nil {
		return err
	}
	r.s.logger.Info("extracting code on the server ...")
	_, err := r.exec("extract", extractCommand(r.d.RemoteDir, r.tmpPath), true)
	return err
}

func (r *deployRun) build() error {
	cmd := buildCommand(r.d.Image, r.d.ExtraImages, r.d.BuildOpts, r.d.RemoteDir)
	r.s.logger.Infof("running remote build: %s", cmd)
	res, err := r.exec("build", cmd, false)
	if res != nil {
		r.result.BuildOutput = res.Output()
		r.result.BuildExitCode = res.ExitCode
		fmt.Fprintf(r.out, "== Build output ==\n%s\n", res.Output())
	}
	if de, ok := utils.AsDeployError(err); ok && de.ExitStatus != 0 {
		de.Message = "remote build failed, deploy aborted"
	}
	return err
}

func (r *deployRun) deploy() error {
	cmd := stackDeployCommand(r.d.ComposeFile, r.d.Stack)
	r.s.logger.Infof("deploying: %s", cmd)
	res, err := r.exec("deploy", cmd, false)
	if res != nil {
		r.result.DeployOutput = res.Output()
		r.result.DeployExitCode = res.ExitCode
		fmt.Fprintf(r.out, "== Deploy output ==\n%s\n", res.Output())
	}
	if de, ok := utils.AsDeployError(err); ok && de.ExitStatus != 0 {
		de.Message = "stack deploy failed"
	}
	return err
}

// exec runs a remote command and turns a transport failure or a non-zero exit
// into a DeployError. withOutput attaches the command output to the error.
func (r *deployRun) exec(step, cmd string, withOutput bool) (*ssh.CommandResult, error) {
	r.s.logger.Debugw("remote command", "step", step, "cmd", cmd)
	res, err := r.session.ExecuteCommand(cmd)
	if err != nil {
		return res, utils.NewRemoteError(step, 0, err)
	}
	if res.ExitCode != 0 {
		de := utils.NewRemoteError(step, res.ExitCode, nil)
		if withOutput {
			de.Details = res.Output()
		}
		return res, de
	}
	return res, nil
}

// close removes the uploaded archive and releases the session.
func (r *deployRun) close() {
	if r.session == nil {
		return
	}
	if r.tmpPath != "" {
		res, err := r.session.ExecuteCommand(cleanupCommand(r.tmpPath))
		switch {
		case err != nil:
			r.s.logger.Warnf("could not remove %s: %v", r.tmpPath, err)
		case res.ExitCode != 0:
			r.s.logger.Warnf("could not remove %s: exit status %d", r.tmpPath, res.ExitCode)
		}
	}
	if err := r.session.Close(); err != nil {
		r.s.logger.Warnf("closing ssh session: %v", err)
	}
}
