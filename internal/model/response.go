package model

// SSHTestResponse reports whether a host can take a stack deploy. Success is
// only set when the host is reachable and an active swarm manager.
type SSHTestResponse struct {
	Success    bool     `json:"success"`
	Reachable  bool     `json:"reachable"`
	RemoteUser string   `json:"remoteUser,omitempty"`
	SwarmState string   `json:"swarmState,omitempty"`
	Message    string   `json:"message,omitempty"`
	Details    []string `json:"details,omitempty"`
	ID         int      `json:"id,omitempty"`
}

type BatchSSHTestResponse struct {
	Total   int                `json:"total"`
	Ready   int                `json:"ready"`
	Results []*SSHTestResponse `json:"results"`
}

type DeployResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId,omitempty"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Code    int    `json:"code,omitempty"`
}

const (
	StatusDeploying = "deploying"
	StatusSuccess   = "success"
	StatusError     = "error"
)

type ProgressResponse struct {
	Success  bool          `json:"success"`
	TaskID   string        `json:"taskId"`
	Stack    string        `json:"stack"`
	Progress float64       `json:"progress"`
	Status   string        `json:"status"`
	Step     string        `json:"step,omitempty"`
	Logs     []string      `json:"logs"`
	Error    string        `json:"error,omitempty"`
	Code     int           `json:"code,omitempty"`
	Result   *DeployResult `json:"result,omitempty"`
}

// DeployResult summarizes a finished deployment.
type DeployResult struct {
	Stack          string `json:"stack"`
	Image          string `json:"image"`
	RemoteDir      string `json:"remoteDir"`
	ArchivePath    string `json:"archivePath"`
	ArchiveSize    int    `json:"archiveSize"`
	ArchiveFiles   int    `json:"archiveFiles"`
	BuildOutput    string `json:"buildOutput,omitempty"`
	BuildExitCode  int    `json:"buildExitCode"`
	DeployOutput   string `json:"deployOutput,omitempty"`
	DeployExitCode int    `json:"deployExitCode"`
}
