package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the control socket at the given path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Vigil.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Vigil.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Vigil.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit registers a video file for processing.
func (c *Client) Submit(sourcePath, originalName string) (*SubmitResponse, error) {
	var resp SubmitResponse
	req := SubmitRequest{SourcePath: sourcePath, OriginalName: originalName}
	if err := c.client.Call("Vigil.Submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reprocess queues a fresh execution for a known video.
func (c *Client) Reprocess(videoID string) (*ReprocessResponse, error) {
	var resp ReprocessResponse
	if err := c.client.Call("Vigil.Reprocess", ReprocessRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoList returns registered videos optionally filtered by statuses.
func (c *Client) VideoList(statuses []string) (*VideoListResponse, error) {
	var resp VideoListResponse
	if err := c.client.Call("Vigil.VideoList", VideoListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecutionShow returns one video's pipeline state.
func (c *Client) ExecutionShow(videoID string) (*ExecutionShowResponse, error) {
	var resp ExecutionShowResponse
	if err := c.client.Call("Vigil.ExecutionShow", ExecutionShowRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecutionList returns executions optionally filtered by statuses.
func (c *Client) ExecutionList(statuses []string) (*ExecutionListResponse, error) {
	var resp ExecutionListResponse
	if err := c.client.Call("Vigil.ExecutionList", ExecutionListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Report compiles the moderation report for a video.
func (c *Client) Report(videoID string) (*ReportResponse, error) {
	var resp ReportResponse
	if err := c.client.Call("Vigil.Report", ReportRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerList returns a video's review triggers.
func (c *Client) TriggerList(videoID string, pendingOnly bool) (*TriggerListResponse, error) {
	var resp TriggerListResponse
	req := TriggerListRequest{VideoID: videoID, PendingOnly: pendingOnly}
	if err := c.client.Call("Vigil.TriggerList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerDecide records an operator decision on a trigger.
func (c *Client) TriggerDecide(req TriggerDecideRequest) (*TriggerDecideResponse, error) {
	var resp TriggerDecideResponse
	if err := c.client.Call("Vigil.TriggerDecide", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskList returns verification tasks optionally filtered by statuses.
func (c *Client) TaskList(statuses []string) (*TaskListResponse, error) {
	var resp TaskListResponse
	if err := c.client.Call("Vigil.TaskList", TaskListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskShow returns one task with its audit trail.
func (c *Client) TaskShow(req TaskShowRequest) (*TaskShowResponse, error) {
	var resp TaskShowResponse
	if err := c.client.Call("Vigil.TaskShow", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskAudit returns the newest audit entries across all tasks.
func (c *Client) TaskAudit(limit int) (*TaskAuditResponse, error) {
	var resp TaskAuditResponse
	if err := c.client.Call("Vigil.TaskAudit", TaskAuditRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskClaim leases the next pending task to worker.
func (c *Client) TaskClaim(worker string) (*TaskClaimResponse, error) {
	var resp TaskClaimResponse
	if err := c.client.Call("Vigil.TaskClaim", TaskClaimRequest{Worker: worker}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskHeartbeat extends worker's live lease on a task.
func (c *Client) TaskHeartbeat(worker string, taskID int64) (*TaskHeartbeatResponse, error) {
	var resp TaskHeartbeatResponse
	req := TaskHeartbeatRequest{Worker: worker, TaskID: taskID}
	if err := c.client.Call("Vigil.TaskHeartbeat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskComplete finishes worker's task with a decision summary.
func (c *Client) TaskComplete(worker string, taskID int64, summary string) (*TaskCompleteResponse, error) {
	var resp TaskCompleteResponse
	req := TaskCompleteRequest{Worker: worker, TaskID: taskID, Summary: summary}
	if err := c.client.Call("Vigil.TaskComplete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskRelease returns worker's task to the pending queue.
func (c *Client) TaskRelease(worker string, taskID int64) (*TaskReleaseResponse, error) {
	var resp TaskReleaseResponse
	req := TaskReleaseRequest{Worker: worker, TaskID: taskID}
	if err := c.client.Call("Vigil.TaskRelease", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskResume re-establishes worker's expired lease on a task.
func (c *Client) TaskResume(worker string, taskID int64) (*TaskResumeResponse, error) {
	var resp TaskResumeResponse
	req := TaskResumeRequest{Worker: worker, TaskID: taskID}
	if err := c.client.Call("Vigil.TaskResume", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskForceRelease returns any in-progress task to the pending queue.
func (c *Client) TaskForceRelease(actor string, taskID int64) (*TaskForceReleaseResponse, error) {
	var resp TaskForceReleaseResponse
	req := TaskForceReleaseRequest{Actor: actor, TaskID: taskID}
	if err := c.client.Call("Vigil.TaskForceRelease", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Vigil.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Vigil.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
