package utils

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/distribution/reference"
)

// shell metacharacters that must never reach a remote command line unquoted
var dangerous = []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "*", "?", "\n", " ", "\t"}

func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be in range 1-65535: %d", port)
	}
	return nil
}

func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse port %q: %v", raw, err)
	}

	if err := ValidatePort(port); err != nil {
		return 0, err
	}

	return port, nil
}

// ValidateStackName accepts the names docker stack deploy accepts: lowercase
// letters, digits, '-', '_' and '.', starting with a letter or digit.
func ValidateStackName(name string) error {
	if name == "" {
		return fmt.Errorf("stack name cannot be empty")
	}

	if len(name) > 63 {
		return fmt.Errorf("stack name cannot exceed 63 characters: %s", name)
	}

	for i, char := range name {
		alnum := (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9')
		if i == 0 && !alnum {
			return fmt.Errorf("stack name must start with a letter or digit: %s", name)
		}
		if !alnum && char != '-' && char != '_' && char != '.' {
			return fmt.Errorf("stack name may only contain lowercase letters, digits, '-', '_' and '.': %s", name)
		}
	}

	return nil
}

// ValidateImageRef checks that image (name:tag) is a valid docker reference.
func ValidateImageRef(image string) error {
	trimmed := strings.TrimSpace(image)
	if trimmed == "" {
		return fmt.Errorf("image name cannot be empty")
	}
	if _, err := reference.ParseNormalizedNamed(trimmed); err != nil {
		return fmt.Errorf("invalid image %q: %w", trimmed, err)
	}
	return nil
}

// ValidateRemoteDir guards the directory that is removed with rm -rf.
func ValidateRemoteDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("remote directory cannot be empty")
	}

	if !strings.HasPrefix(dir, "/") {
		return fmt.Errorf("remote directory must be absolute: %s", dir)
	}

	if path.Clean(dir) == "/" {
		return fmt.Errorf("refusing to use / as remote directory")
	}

	if SanitizeString(dir) != dir {
		return fmt.Errorf("remote directory contains shell metacharacters: %q", dir)
	}

	return nil
}

func SanitizeString(input string) string {
	result := input

	for _, char := range dangerous {
		result = strings.ReplaceAll(result, char, "")
	}

	return strings.TrimSpace(result)
}
