package ssh

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const DefaultPort = 22

type SSHConfig struct {
	Host       string
	Port       int
	Username   string
	AuthType   string
	Password   string
	PrivateKey string
	Passphrase string
	Timeout    time.Duration
}

type Client struct {
	config SSHConfig
	conn   *ssh.Client
	sftp   *sftp.Client
}

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Output is stdout followed by stderr, the way the remote command printed them.
func (r *CommandResult) Output() string {
	switch {
	case r.Stdout == "":
		return r.Stderr
	case r.Stderr == "":
		return r.Stdout
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

func NewClient(config SSHConfig) *Client {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
	}
}

func (c *Client) Addr() string {
	return JoinHostPort(c.config.Host, c.config.Port)
}

func (c *Client) Connect() error {
	auth, err := c.authMethods()
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            auth,
		Timeout:         c.config.Timeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // host keys are not pinned
	}

	conn, err := ssh.Dial("tcp", c.Addr(), config)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.Addr())
	}

	c.conn = conn
	return nil
}

func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	switch c.config.AuthType {
	case "", "password":
		return []ssh.AuthMethod{ssh.Password(c.config.Password)}, nil
	case "key":
		signer, err := parsePrivateKey(c.config.PrivateKey, c.config.Passphrase)
		if err != nil {
			return nil, errors.Wrap(err, "parse private key")
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q", c.config.AuthType)
	}
}

func parsePrivateKey(privateKey, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase([]byte(privateKey), []byte(passphrase))
	}
	return ssh.ParsePrivateKey([]byte(privateKey))
}

// OpenSFTP starts the file transfer subsystem on the established connection.
func (c *Client) OpenSFTP() error {
	if c.conn == nil {
		return fmt.Errorf("ssh connection not established")
	}
	if c.sftp != nil {
		return nil
	}

	client, err := sftp.NewClient(c.conn)
	if err != nil {
		return errors.Wrap(err, "open sftp subsystem")
	}
	c.sftp = client
	return nil
}

// ExecuteCommand runs cmd in a new session and waits for it to finish. A
// non-zero exit status is reported through CommandResult.ExitCode, not as an
// error; the error is reserved for failures to run the command at all.
func (c *Client) ExecuteCommand(cmd string) (*CommandResult, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("ssh connection not established")
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "create ssh session")
	}
	defer session.Close()

	var stdoutBuf, stderrBuf strings.Builder
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	err = session.Run(cmd)

	result := &CommandResult{
		Stdout: strings.TrimSpace(stdoutBuf.String()),
		Stderr: strings.TrimSpace(stderrBuf.String()),
	}

	if err != nil {
		if exitError, ok := err.(*ssh.ExitError); ok {
			result.ExitCode = exitError.ExitStatus()
			return result, nil
		}
		return result, errors.Wrapf(err, "run %q", cmd)
	}

	return result, nil
}

// UploadFile writes content to remotePath over SFTP, replacing any existing file.
func (c *Client) UploadFile(content []byte, remotePath string) error {
	if c.sftp == nil {
		if err := c.OpenSFTP(); err != nil {
			return err
		}
	}

	f, err := c.sftp.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return errors.Wrapf(err, "create %s", remotePath)
	}

	if _, err := f.ReadFrom(bytes.NewReader(content)); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", remotePath)
	}

	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", remotePath)
	}
	return nil
}

// Close releases the SFTP channel and the connection. It is safe to call on a
// client that never connected.
func (c *Client) Close() error {
	var firstErr error
	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			firstErr = err
		}
		c.sftp = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.conn = nil
	}
	return firstErr
}
