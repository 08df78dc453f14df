package service

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"swarm-deploy/internal/model"
	"swarm-deploy/internal/pkg/compose"
	"swarm-deploy/internal/pkg/prompt"
	"swarm-deploy/internal/pkg/ssh"
	"swarm-deploy/pkg/utils"
)

const (
	DefaultImageTag = "latest"
	remoteBaseDir   = "/tmp"
)

// Resolver turns a DeployRequest into a Deployment before any remote I/O.
// With a nil asker, missing connection parameters are validation errors.
type Resolver struct {
	fs    afero.Fs
	asker prompt.Asker
}

func NewResolver(fs afero.Fs, asker prompt.Asker) *Resolver {
	return &Resolver{fs: fs, asker: asker}
}

func (r *Resolver) Resolve(req *model.DeployRequest) (*model.Deployment, error) {
	projectDir, err := r.projectDir(req.ProjectDir)
	if err != nil {
		return nil, err
	}
	projectName := filepath.Base(projectDir)

	stack := req.Stack
	if stack == "" {
		stack = projectName
	}
	stack = strings.ToLower(stack)
	if err := utils.ValidateStackName(stack); err != nil {
		return nil, utils.NewValidationErrorf("stack", err)
	}

	remoteDir := req.RemoteDir
	if remoteDir == "" {
		remoteDir = remoteBaseDir + "/" + projectName
	}
	if err := utils.ValidateRemoteDir(remoteDir); err != nil {
		return nil, utils.NewValidationErrorf("remote directory", err)
	}

	tag := req.ImageTag
	if tag == "" {
		tag = DefaultImageTag
	}
	image := imageName(stack, tag)
	if err := utils.ValidateImageRef(image); err != nil {
		return nil, utils.NewValidationErrorf("image tag", err)
	}

	var extraImages []string
	seen := map[string]bool{image: true}
	for _, extra := range req.ExtraTags {
		extra = strings.TrimSpace(extra)
		if extra == "" {
			continue
		}
		name := imageName(stack, extra)
		if seen[name] {
			continue
		}
		if err := utils.ValidateImageRef(name); err != nil {
			return nil, utils.NewValidationErrorf("extra tag", err)
		}
		seen[name] = true
		extraImages = append(extraImages, name)
	}

	buildOpts, err := shellwords.Parse(req.BuildOpts)
	if err != nil {
		return nil, utils.NewValidationErrorf("build options", err)
	}
	for _, opt := range buildOpts {
		if strings.ContainsAny(opt, "\n\r") {
			return nil, utils.NewValidationError("build options", opt)
		}
	}

	target, err := r.ResolveTarget(&model.SSHTestRequest{
		Host:       req.Host,
		User:       req.User,
		AuthType:   req.AuthType,
		Password:   req.Password,
		PrivateKey: req.PrivateKey,
		Passphrase: req.Passphrase,
	})
	if err != nil {
		return nil, err
	}

	return &model.Deployment{
		Target:              target,
		Stack:               stack,
		Image:               image,
		ExtraImages:         extraImages,
		ProjectDir:          projectDir,
		RemoteDir:           remoteDir,
		ComposeFile:         remoteDir + "/" + compose.DefaultFile,
		BuildOpts:           buildOpts,
		RespectDockerignore: req.RespectDockerignore,
		CheckCompose:        !req.SkipComposeCheck,
	}, nil
}

// ResolveTarget fills in host, user and credential, prompting for whatever is
// missing. The password is asked for last, once host and user are known.
func (r *Resolver) ResolveTarget(req *model.SSHTestRequest) (model.Target, error) {
	host := strings.TrimSpace(req.Host)
	if host == "" {
		answer, err := r.ask("host", r.askHost)
		if err != nil {
			return model.Target{}, err
		}
		host = answer
	}
	hostname, port, err := ssh.ParseHostPort(host)
	if err != nil {
		return model.Target{}, utils.NewValidationErrorf("host", err)
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		answer, err := r.ask("user", r.askUser)
		if err != nil {
			return model.Target{}, err
		}
		user = answer
	}

	target := model.Target{
		Hostname: hostname,
		Port:     port,
		User:     user,
		AuthType: req.AuthType,
	}
	if target.AuthType == "" {
		target.AuthType = model.AuthPassword
	}

	switch target.AuthType {
	case model.AuthPassword:
		target.Password = req.Password
		if target.Password == "" {
			if r.asker == nil {
				return model.Target{}, utils.NewValidationError("password", "<empty>")
			}
			password, err := r.asker.AskPassword(user, ssh.JoinHostPort(hostname, port))
			if err != nil {
				return model.Target{}, err
			}
			target.Password = password
		}
	case model.AuthKey:
		if strings.TrimSpace(req.PrivateKey) == "" {
			return model.Target{}, utils.NewValidationError("private key", "<empty>")
		}
		target.PrivateKey = req.PrivateKey
		target.Passphrase = req.Passphrase
	default:
		return model.Target{}, utils.NewValidationError("auth type", target.AuthType)
	}

	return target, nil
}

func (r *Resolver) ask(field string, fn func() (string, error)) (string, error) {
	if r.asker == nil {
		return "", utils.NewValidationError(field, "<empty>")
	}
	answer, err := fn()
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", utils.NewValidationError(field, "<empty>")
	}
	return answer, nil
}

func (r *Resolver) askHost() (string, error) { return r.asker.AskHost() }

func (r *Resolver) askUser() (string, error) { return r.asker.AskUser() }

func (r *Resolver) projectDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", utils.NewValidationErrorf("project directory", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", utils.NewValidationErrorf("project directory", err)
	}
	info, err := r.fs.Stat(abs)
	if err != nil {
		return "", utils.NewValidationErrorf("project directory", err)
	}
	if !info.IsDir() {
		return "", utils.NewValidationErrorf("project directory", fmt.Errorf("%s is not a directory", abs))
	}
	return abs, nil
}

func imageName(stack, tag string) string {
	return strings.ToLower(stack + ":" + tag)
}
