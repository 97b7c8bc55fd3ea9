package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vigil/internal/config"
)

const (
	defaultTimeout     = 2 * time.Minute
	transcribeEndpoint = "/v1/transcribe"
	framesEndpoint     = "/v1/frames/analyze"
	healthEndpoint     = "/v1/health"
)

// Client wraps the remote inference gateway fronting the speech and vision
// models.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the inference client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a gateway client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FromConfig constructs a client from the inference section.
func FromConfig(cfg *config.Config) *Client {
	return NewClient(cfg.Inference.BaseURL, cfg.Inference.APIKey,
		WithTimeout(time.Duration(cfg.Inference.TimeoutSeconds)*time.Second))
}

// Segment is one transcribed utterance with second offsets from the start of
// the video.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the speech model's output for one audio track.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Detection is one detector hit on an analyzed frame.
type Detection struct {
	Source     string         `json:"source"`
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data"`
}

// Transcribe uploads a WAV file and returns its transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	var transcript Transcript
	if err := c.postFile(ctx, transcribeEndpoint, audioPath, nil, &transcript); err != nil {
		return nil, fmt.Errorf("transcribe audio: %w", err)
	}
	return &transcript, nil
}

// AnalyzeFrame uploads one frame still and returns detector hits. detectors
// narrows which models run; empty means the gateway's full set.
func (c *Client) AnalyzeFrame(ctx context.Context, framePath string, detectors []string) ([]Detection, error) {
	fields := map[string]string{}
	if len(detectors) > 0 {
		fields["detectors"] = strings.Join(detectors, ",")
	}
	var response struct {
		Detections []Detection `json:"detections"`
	}
	if err := c.postFile(ctx, framesEndpoint, framePath, fields, &response); err != nil {
		return nil, fmt.Errorf("analyze frame: %w", err)
	}
	return response.Detections, nil
}

// Health checks gateway reachability.
func (c *Client) Health(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.baseURL, healthEndpoint)
	if err != nil {
		return fmt.Errorf("gateway health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("gateway health: request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway health: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &RemoteError{StatusCode: resp.StatusCode, Message: remoteMessage(payload)}
	}
	return nil
}

// postFile streams a multipart upload so large audio tracks never sit in
// memory whole.
func (c *Client) postFile(ctx context.Context, endpointPath, filePath string, fields map[string]string, out any) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		err := func() error {
			for key, value := range fields {
				if err := form.WriteField(key, value); err != nil {
					return err
				}
			}
			part, err := form.CreateFormFile("file", filepath.Base(filePath))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return form.Close()
		}()
		writer.CloseWithError(err)
	}()

	endpoint, err := url.JoinPath(c.baseURL, endpointPath)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &RemoteError{StatusCode: resp.StatusCode, Message: remoteMessage(payload)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func remoteMessage(payload []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	message := strings.TrimSpace(string(payload))
	if len(message) > 200 {
		message = message[:200]
	}
	return message
}
