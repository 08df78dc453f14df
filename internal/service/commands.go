package service

import (
	"fmt"
	"regexp"
	"strings"
)

var safeArg = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// shellQuote quotes arg for a POSIX shell unless it is made only of safe characters.
func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if safeArg.MatchString(arg) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

func archivePath(unix int64) string {
	return fmt.Sprintf("/tmp/%d_app.tar.gz", unix)
}

func removeDirCommand(remoteDir string) string {
	return fmt.Sprintf("rm -rf %s", remoteDir)
}

func extractCommand(remoteDir, archive string) string {
	return fmt.Sprintf("mkdir -p %s && tar xzf %s -C %s", remoteDir, archive, remoteDir)
}

func cleanupCommand(archive string) string {
	return fmt.Sprintf("rm -f %s", archive)
}

// buildCommand renders "docker build -t <image> <dir>". Extra tags and build
// options go between the primary tag and the context directory.
func buildCommand(image string, extraImages, opts []string, remoteDir string) string {
	parts := []string{"docker", "build", "-t", image}
	for _, extra := range extraImages {
		parts = append(parts, "-t", extra)
	}
	for _, opt := range opts {
		parts = append(parts, shellQuote(opt))
	}
	parts = append(parts, remoteDir)
	return strings.Join(parts, " ")
}

func stackDeployCommand(composeFile, stack string) string {
	return fmt.Sprintf("docker stack deploy -c %s %s", composeFile, stack)
}

const (
	whoamiCommand     = "whoami"
	swarmStateCommand = "docker info --format '{{.Swarm.LocalNodeState}}'"
)
