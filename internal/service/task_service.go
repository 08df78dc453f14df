package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"swarm-deploy/internal/model"
	"swarm-deploy/internal/pkg/logger"
	"swarm-deploy/pkg/utils"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrStackBusy     = errors.New("a deployment of this stack is already running")
	subscriberBuffer = 256
)

// Deployer runs one resolved deployment.
type Deployer interface {
	Deploy(ctx context.Context, d *model.Deployment, out io.Writer, observer StepObserver) (*model.DeployResult, error)
}

type task struct {
	progress    model.ProgressResponse
	subscribers map[chan string]struct{}
	done        chan struct{}
}

// TaskService runs deployments in the background and keeps their progress in
// memory. At most one deployment per stack runs at a time.
type TaskService struct {
	deployer Deployer
	resolver *Resolver
	logger   *logger.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	running map[string]string // stack -> task id
}

func NewTaskService(deployer Deployer, resolver *Resolver, logger *logger.Logger) *TaskService {
	return &TaskService{
		deployer: deployer,
		resolver: resolver,
		logger:   logger,
		tasks:    make(map[string]*task),
		running:  make(map[string]string),
	}
}

// Start resolves req and launches the deployment. Resolution errors are
// returned synchronously.
func (s *TaskService) Start(req *model.DeployRequest) (string, error) {
	d, err := s.resolver.Resolve(req)
	if err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	s.mu.Lock()
	if id, busy := s.running[d.Stack]; busy {
		s.mu.Unlock()
		return id, ErrStackBusy
	}
	t := &task{
		progress: model.ProgressResponse{
			Success:  true,
			TaskID:   taskID,
			Stack:    d.Stack,
			Progress: 0,
			Status:   model.StatusDeploying,
			Logs:     []string{"Deployment started"},
		},
		subscribers: make(map[chan string]struct{}),
		done:        make(chan struct{}),
	}
	s.tasks[taskID] = t
	s.running[d.Stack] = taskID
	s.mu.Unlock()

	s.logger.Infow("deployment task started", "task", taskID, "stack", d.Stack)
	go s.run(taskID, d)
	return taskID, nil
}

func (s *TaskService) run(taskID string, d *model.Deployment) {
	w := &taskWriter{s: s, id: taskID}
	result, err := s.deployer.Deploy(context.Background(), d, w, &taskObserver{s: s, id: taskID})
	w.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[taskID]
	delete(s.running, d.Stack)
	t.progress.Result = result
	if err != nil {
		t.progress.Success = false
		t.progress.Status = model.StatusError
		t.progress.Error = err.Error()
		if de, ok := utils.AsDeployError(err); ok {
			t.progress.Code = de.Code
		}
		s.appendLocked(t, fmt.Sprintf("Deployment failed: %v", err))
		s.logger.Errorw("deployment task failed", "task", taskID, "stack", d.Stack, "error", err.Error())
	} else {
		t.progress.Status = model.StatusSuccess
		t.progress.Progress = 100
		s.appendLocked(t, "Deployment completed successfully")
		s.logger.Infow("deployment task finished", "task", taskID, "stack", d.Stack)
	}
	for ch := range t.subscribers {
		close(ch)
	}
	t.subscribers = nil
	close(t.done)
}

func (s *TaskService) Progress(taskID string) (model.ProgressResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return model.ProgressResponse{}, false
	}
	p := t.progress
	p.Logs = append([]string(nil), t.progress.Logs...)
	return p, true
}

// Subscribe returns the log lines so far and a channel carrying the following
// ones. The channel is closed when the task finishes; for a finished task it
// is returned already closed. cancel detaches the subscriber.
func (s *TaskService) Subscribe(taskID string) (backlog []string, lines <-chan string, cancel func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, nil, ErrTaskNotFound
	}
	backlog = append([]string(nil), t.progress.Logs...)
	ch := make(chan string, subscriberBuffer)
	if t.subscribers == nil {
		close(ch)
		return backlog, ch, func() {}, nil
	}
	t.subscribers[ch] = struct{}{}
	cancel = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := t.subscribers[ch]; ok {
			delete(t.subscribers, ch)
			close(ch)
		}
	}
	return backlog, ch, cancel, nil
}

// Wait blocks until the task finishes or ctx is done.
func (s *TaskService) Wait(ctx context.Context, taskID string) error {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	s.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TaskService) appendLog(taskID, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[taskID]; ok {
		s.appendLocked(t, line)
	}
}

func (s *TaskService) appendLocked(t *task, line string) {
	t.progress.Logs = append(t.progress.Logs, line)
	for ch := range t.subscribers {
		select {
		case ch <- line:
		default:
			s.logger.Warnw("dropping log line for slow subscriber", "task", t.progress.TaskID)
		}
	}
}

type taskObserver struct {
	s  *TaskService
	id string
}

func (o *taskObserver) StepStarted(step string, index, total int) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	t := o.s.tasks[o.id]
	t.progress.Step = step
	o.s.appendLocked(t, fmt.Sprintf("Starting %s", step))
}

func (o *taskObserver) StepFinished(step string, index, total int, err error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	t := o.s.tasks[o.id]
	if err != nil {
		o.s.appendLocked(t, fmt.Sprintf("Failed %s: %v", step, err))
		return
	}
	t.progress.Progress = float64((index+1)*100) / float64(total)
	o.s.appendLocked(t, fmt.Sprintf("Completed %s", step))
}

// taskWriter turns command output into log lines.
type taskWriter struct {
	s   *TaskService
	id  string
	buf bytes.Buffer
}

func (w *taskWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.s.appendLog(w.id, strings.TrimRight(line, "\r\n"))
	}
}

func (w *taskWriter) Flush() {
	if w.buf.Len() > 0 {
		w.s.appendLog(w.id, w.buf.String())
		w.buf.Reset()
	}
}
