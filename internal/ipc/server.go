package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"vigil/internal/daemon"
	"vigil/internal/lease"
	"vigil/internal/logging"
	"vigil/internal/logs"
	"vigil/internal/pipeline"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Vigil", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("control socket listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "control socket clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("socket cleanup failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale control socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun vigil daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via control socket",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via control socket",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockPath
	resp.LogPath = status.LogPath
	resp.PipelineDBPath = status.PipelineDBPath
	resp.ReviewDBPath = status.ReviewDBPath
	resp.LastError = status.LastError
	resp.Executions = ExecutionStats{
		Total:     status.Executions.Total,
		Pending:   status.Executions.Pending,
		Running:   status.Executions.Running,
		Completed: status.Executions.Completed,
		Failed:    status.Executions.Failed,
	}
	resp.Tasks = TaskStats{
		Total:      status.Tasks.Total,
		Pending:    status.Tasks.Pending,
		InProgress: status.Tasks.InProgress,
		Completed:  status.Tasks.Completed,
	}
	resp.Checks = make([]Check, 0, len(status.Checks))
	for _, check := range status.Checks {
		resp.Checks = append(resp.Checks, FromCheck(check))
	}
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	if req.SourcePath == "" {
		return errors.New("submit requires a source path")
	}
	s.log().Debug("submit requested", logging.String("source", req.SourcePath))
	video, exec, err := s.daemon.SubmitFile(s.ctx, req.SourcePath, req.OriginalName)
	if err != nil {
		return err
	}
	resp.Video = *FromVideo(video)
	resp.Execution = *FromExecution(exec)
	s.log().Info("video submitted via control socket",
		logging.String(logging.FieldVideoID, video.ID),
		logging.String(logging.FieldEventType, "video_submitted"))
	return nil
}

func (s *service) Reprocess(req ReprocessRequest, resp *ReprocessResponse) error {
	if req.VideoID == "" {
		return errors.New("reprocess requires a video id")
	}
	exec, err := s.daemon.Reprocess(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	resp.Execution = *FromExecution(exec)
	return nil
}

func (s *service) VideoList(req VideoListRequest, resp *VideoListResponse) error {
	statuses := make([]pipeline.VideoStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		parsed, ok := pipeline.ParseVideoStatus(raw)
		if !ok {
			return fmt.Errorf("unknown video status %q", raw)
		}
		statuses = append(statuses, parsed)
	}
	videos, err := s.daemon.ListVideos(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Videos = make([]Video, 0, len(videos))
	for _, video := range videos {
		if dto := FromVideo(video); dto != nil {
			resp.Videos = append(resp.Videos, *dto)
		}
	}
	return nil
}

func (s *service) ExecutionShow(req ExecutionShowRequest, resp *ExecutionShowResponse) error {
	if req.VideoID == "" {
		return errors.New("execution show requires a video id")
	}
	video, err := s.daemon.Video(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	if video == nil {
		return fmt.Errorf("video %s not found", req.VideoID)
	}
	resp.Video = *FromVideo(video)
	exec, err := s.daemon.Execution(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	resp.Execution = FromExecution(exec)
	return nil
}

func (s *service) ExecutionList(req ExecutionListRequest, resp *ExecutionListResponse) error {
	statuses := make([]pipeline.ExecutionStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		parsed, ok := pipeline.ParseExecutionStatus(raw)
		if !ok {
			return fmt.Errorf("unknown execution status %q", raw)
		}
		statuses = append(statuses, parsed)
	}
	execs, err := s.daemon.ListExecutions(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Executions = make([]Execution, 0, len(execs))
	for _, exec := range execs {
		if dto := FromExecution(exec); dto != nil {
			resp.Executions = append(resp.Executions, *dto)
		}
	}
	return nil
}

func (s *service) Report(req ReportRequest, resp *ReportResponse) error {
	if req.VideoID == "" {
		return errors.New("report requires a video id")
	}
	report, err := s.daemon.Report(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	resp.Report = *report
	return nil
}

func (s *service) TriggerList(req TriggerListRequest, resp *TriggerListResponse) error {
	if req.VideoID == "" {
		return errors.New("trigger list requires a video id")
	}
	triggers, err := s.daemon.Triggers(s.ctx, req.VideoID, req.PendingOnly)
	if err != nil {
		return err
	}
	resp.Triggers = make([]Trigger, 0, len(triggers))
	for _, trigger := range triggers {
		if dto := FromTrigger(trigger); dto != nil {
			resp.Triggers = append(resp.Triggers, *dto)
		}
	}
	return nil
}

func (s *service) TriggerDecide(req TriggerDecideRequest, resp *TriggerDecideResponse) error {
	trigger, err := s.daemon.DecideTrigger(s.ctx, req.Worker, req.TaskID, req.TriggerID, req.Label, req.Note)
	if err != nil {
		return err
	}
	resp.Trigger = *FromTrigger(trigger)
	s.log().Info("trigger decided via control socket",
		logging.String(logging.FieldWorker, req.Worker),
		logging.Int64("trigger_id", req.TriggerID),
		logging.String("label", req.Label),
		logging.String(logging.FieldEventType, "trigger_decided"))
	return nil
}

func (s *service) TaskList(req TaskListRequest, resp *TaskListResponse) error {
	statuses := make([]lease.TaskStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		parsed, ok := lease.ParseTaskStatus(raw)
		if !ok {
			return fmt.Errorf("unknown task status %q", raw)
		}
		statuses = append(statuses, parsed)
	}
	tasks, err := s.daemon.Tasks(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Tasks = make([]Task, 0, len(tasks))
	for _, task := range tasks {
		if dto := FromTask(task); dto != nil {
			resp.Tasks = append(resp.Tasks, *dto)
		}
	}
	return nil
}

func (s *service) TaskShow(req TaskShowRequest, resp *TaskShowResponse) error {
	var task *lease.Task
	var err error
	switch {
	case req.ID > 0:
		task, err = s.daemon.Task(s.ctx, req.ID)
	case req.VideoID != "":
		task, err = s.daemon.TaskForVideo(s.ctx, req.VideoID)
	default:
		return errors.New("task show requires a task id or video id")
	}
	if err != nil {
		return err
	}
	if task == nil {
		return errors.New("task not found")
	}
	resp.Task = *FromTask(task)
	actions, err := s.daemon.TaskActions(s.ctx, task.ID)
	if err != nil {
		return err
	}
	resp.Actions = make([]TaskAction, 0, len(actions))
	for _, action := range actions {
		if dto := FromActionEntry(action); dto != nil {
			resp.Actions = append(resp.Actions, *dto)
		}
	}
	return nil
}

func (s *service) TaskAudit(req TaskAuditRequest, resp *TaskAuditResponse) error {
	actions, err := s.daemon.RecentActions(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Actions = make([]TaskAction, 0, len(actions))
	for _, action := range actions {
		if dto := FromActionEntry(action); dto != nil {
			resp.Actions = append(resp.Actions, *dto)
		}
	}
	return nil
}

func (s *service) TaskClaim(req TaskClaimRequest, resp *TaskClaimResponse) error {
	task, err := s.daemon.ClaimTask(s.ctx, req.Worker)
	if err != nil {
		return err
	}
	if task == nil {
		resp.Claimed = false
		return nil
	}
	resp.Claimed = true
	resp.Task = FromTask(task)
	s.log().Info("task claimed via control socket",
		logging.String(logging.FieldWorker, req.Worker),
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldEventType, "task_claimed"))
	return nil
}

func (s *service) TaskHeartbeat(req TaskHeartbeatRequest, resp *TaskHeartbeatResponse) error {
	task, err := s.daemon.HeartbeatTask(s.ctx, req.Worker, req.TaskID)
	if err != nil {
		return err
	}
	resp.Task = *FromTask(task)
	return nil
}

func (s *service) TaskComplete(req TaskCompleteRequest, resp *TaskCompleteResponse) error {
	task, err := s.daemon.CompleteTask(s.ctx, req.Worker, req.TaskID, req.Summary)
	if err != nil {
		return err
	}
	resp.Task = *FromTask(task)
	s.log().Info("task completed via control socket",
		logging.String(logging.FieldWorker, req.Worker),
		logging.Int64(logging.FieldTaskID, req.TaskID),
		logging.String(logging.FieldEventType, "task_completed"))
	return nil
}

func (s *service) TaskRelease(req TaskReleaseRequest, resp *TaskReleaseResponse) error {
	task, err := s.daemon.ReleaseTask(s.ctx, req.Worker, req.TaskID)
	if err != nil {
		return err
	}
	resp.Task = *FromTask(task)
	return nil
}

func (s *service) TaskResume(req TaskResumeRequest, resp *TaskResumeResponse) error {
	task, err := s.daemon.ResumeTask(s.ctx, req.Worker, req.TaskID)
	if err != nil {
		return err
	}
	resp.Task = *FromTask(task)
	return nil
}

func (s *service) TaskForceRelease(req TaskForceReleaseRequest, resp *TaskForceReleaseResponse) error {
	task, err := s.daemon.ForceReleaseTask(s.ctx, req.Actor, req.TaskID)
	if err != nil {
		return err
	}
	resp.Task = *FromTask(task)
	s.log().Info("task force released via control socket",
		logging.String("actor", req.Actor),
		logging.Int64(logging.FieldTaskID, req.TaskID),
		logging.String(logging.FieldEventType, "task_force_released"))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.Options{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
