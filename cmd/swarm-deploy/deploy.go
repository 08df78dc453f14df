package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"swarm-deploy/internal/config"
	"swarm-deploy/internal/model"
	"swarm-deploy/internal/service"
)

func addTargetFlags(fs *pflag.FlagSet) {
	fs.StringP(config.KeyHost, "H", "", "Server address, optionally with a port (prompted when empty)")
	fs.StringP(config.KeyUser, "u", "root", "SSH user (prompted when empty)")
	fs.Duration(config.KeyConnectTimeout, 30*time.Second, "SSH connection timeout")
}

func newDeployCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swarm-deploy",
		Short: "Build a project on a remote Docker host and deploy it as a swarm stack",
		Long: `swarm-deploy packs a local project directory, uploads it over SSH, builds
the image on the server and runs docker stack deploy with the project's
docker-compose.yml. The SSH password is always asked for interactively.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, a)
		},
	}
	cmd.Example = `  # Deploy the current directory as stack "shop"
  swarm-deploy --host 10.0.0.5 --stack shop

  # Build a tagged image from another directory on a non-standard port
  swarm-deploy -H deploy.example.com:2222 -p ./services/api --image-tag v1.4.0`

	fs := cmd.Flags()
	addTargetFlags(fs)
	fs.StringP(config.KeyStack, "s", "", "Stack name (default: project directory name, lowercased)")
	fs.StringP(config.KeyProjectDir, "p", ".", "Project directory to upload")
	fs.String(config.KeyRemoteDir, "", "Directory on the server to extract into (default: /tmp/<project directory name>)")
	fs.String(config.KeyImageTag, service.DefaultImageTag, "Image tag")
	fs.StringSlice(config.KeyExtraTags, nil, "Additional image tags (repeat or comma-separate)")
	fs.String(config.KeyBuildOpts, "", "Extra docker build options, shell-quoted")
	fs.Bool(config.KeyDockerignore, false, "Leave out files matched by .dockerignore")
	fs.Bool(config.KeySkipComposeCheck, false, "Do not validate docker-compose.yml locally before uploading")
	return cmd
}

func runDeploy(cmd *cobra.Command, a *app) error {
	cfg := a.cfg.Deploy
	req := &model.DeployRequest{
		Host:                cfg.Host,
		User:                cfg.User,
		Stack:               cfg.Stack,
		ProjectDir:          cfg.ProjectDir,
		RemoteDir:           cfg.RemoteDir,
		ImageTag:            cfg.ImageTag,
		ExtraTags:           cfg.ExtraTags,
		BuildOpts:           cfg.BuildOpts,
		RespectDockerignore: cfg.RespectDockerignore,
		SkipComposeCheck:    cfg.SkipComposeCheck,
	}

	d, err := service.NewResolver(a.fs, a.prompter()).Resolve(req)
	if err != nil {
		return err
	}
	a.log.Debugw("resolved deployment", "stack", d.Stack, "image", d.Image, "remoteDir", d.RemoteDir)

	deployer := service.NewDeployService(a.sessions, a.fs, a.log, a.cfg.SSH.ConnectTimeout)
	_, err = deployer.Deploy(cmd.Context(), d, a.stdout, nil)
	return err
}
