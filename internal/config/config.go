package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const EnvPrefix = "SWARM_DEPLOY"

// Keys shared by flags, SWARM_DEPLOY_* variables and the config file.
const (
	KeyHost             = "host"
	KeyUser             = "user"
	KeyStack            = "stack"
	KeyProjectDir       = "project-dir"
	KeyRemoteDir        = "remote-dir"
	KeyImageTag         = "image-tag"
	KeyExtraTags        = "extra-tag"
	KeyBuildOpts        = "build-opts"
	KeyDockerignore     = "dockerignore"
	KeySkipComposeCheck = "skip-compose-check"
	KeyConnectTimeout   = "connect-timeout"
	KeyAddr             = "addr"
	KeyAllowOrigins     = "allow-origin"
	KeyLogLevel         = "log-level"
	KeyNoColor          = "no-color"
)

type Config struct {
	Deploy  DeployConfig
	SSH     SSHConfig
	Server  ServerConfig
	Logging LoggingConfig
}

type DeployConfig struct {
	Host                string
	User                string
	Stack               string
	ProjectDir          string
	RemoteDir           string
	ImageTag            string
	ExtraTags           []string
	BuildOpts           string
	RespectDockerignore bool
	SkipComposeCheck    bool
}

type SSHConfig struct {
	ConnectTimeout time.Duration
}

type ServerConfig struct {
	Addr         string
	AllowOrigins []string
}

type LoggingConfig struct {
	Level   string
	NoColor bool
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile may be empty.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault(KeyUser, "root")
	v.SetDefault(KeyProjectDir, ".")
	v.SetDefault(KeyImageTag, "latest")
	v.SetDefault(KeyConnectTimeout, 30*time.Second)
	v.SetDefault(KeyAddr, "127.0.0.1:8080")
	v.SetDefault(KeyAllowOrigins, []string{"http://localhost:3000"})
	v.SetDefault(KeyLogLevel, "info")

	if configFile == "" {
		return v, nil
	}
	path, err := homedir.Expand(configFile)
	if err != nil {
		return nil, err
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

func LoadConfig(v *viper.Viper) *Config {
	return &Config{
		Deploy: DeployConfig{
			Host:                v.GetString(KeyHost),
			User:                v.GetString(KeyUser),
			Stack:               v.GetString(KeyStack),
			ProjectDir:          v.GetString(KeyProjectDir),
			RemoteDir:           v.GetString(KeyRemoteDir),
			ImageTag:            v.GetString(KeyImageTag),
			ExtraTags:           v.GetStringSlice(KeyExtraTags),
			BuildOpts:           v.GetString(KeyBuildOpts),
			RespectDockerignore: v.GetBool(KeyDockerignore),
			SkipComposeCheck:    v.GetBool(KeySkipComposeCheck),
		},
		SSH: SSHConfig{
			ConnectTimeout: v.GetDuration(KeyConnectTimeout),
		},
		Server: ServerConfig{
			Addr:         v.GetString(KeyAddr),
			AllowOrigins: v.GetStringSlice(KeyAllowOrigins),
		},
		Logging: LoggingConfig{
			Level:   v.GetString(KeyLogLevel),
			NoColor: v.GetBool(KeyNoColor),
		},
	}
}
