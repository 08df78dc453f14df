package model

const (
	AuthPassword = "password"
	AuthKey      = "key"
)

// DeployRequest is what a caller asks for. Empty fields are filled in by the
// resolver from defaults or interactive prompts.
type DeployRequest struct {
	Host                string   `json:"host" binding:"required"`
	User                string   `json:"user" binding:"required"`
	AuthType            string   `json:"authType" binding:"omitempty,oneof=password key"`
	Password            string   `json:"password,omitempty"`
	PrivateKey          string   `json:"privateKey,omitempty"`
	Passphrase          string   `json:"passphrase,omitempty"`
	Stack               string   `json:"stack"`
	ProjectDir          string   `json:"projectDir" binding:"required"`
	RemoteDir           string   `json:"remoteDir"`
	ImageTag            string   `json:"imageTag"`
	ExtraTags           []string `json:"extraTags,omitempty"`
	BuildOpts           string   `json:"buildOpts,omitempty"`
	RespectDockerignore bool     `json:"respectDockerignore"`
	SkipComposeCheck    bool     `json:"skipComposeCheck"`
}

type SSHTestRequest struct {
	Host       string `json:"host" binding:"required"`
	User       string `json:"user" binding:"required"`
	AuthType   string `json:"authType" binding:"omitempty,oneof=password key"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

type BatchSSHTestRequest struct {
	Nodes []BatchNodeRequest `json:"nodes" binding:"required,dive"`
}

type BatchNodeRequest struct {
	ID int `json:"id"`
	SSHTestRequest
}

// Target is a resolved SSH endpoint together with its credentials.
type Target struct {
	Hostname   string `json:"hostname"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	AuthType   string `json:"authType"`
	Password   string `json:"-"`
	PrivateKey string `json:"-"`
	Passphrase string `json:"-"`
}

// Deployment is a fully resolved DeployRequest. Nothing in it is prompted for
// or defaulted later.
type Deployment struct {
	Target              Target   `json:"target"`
	Stack               string   `json:"stack"`
	Image               string   `json:"image"`
	ExtraImages         []string `json:"extraImages,omitempty"`
	ProjectDir          string   `json:"projectDir"`
	RemoteDir           string   `json:"remoteDir"`
	ComposeFile         string   `json:"composeFile"`
	BuildOpts           []string `json:"buildOpts,omitempty"`
	RespectDockerignore bool     `json:"respectDockerignore"`
	CheckCompose        bool     `json:"checkCompose"`
}
