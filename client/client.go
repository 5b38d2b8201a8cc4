package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bosley/relayscribe/transcript"
)

const (
	UploadPath  = "/api/transcribe/upload"
	URLPath     = "/api/transcribe/url"
	UploadField = "audio"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	// Stream requests a live event stream; otherwise the server answers with
	// one JSON document when the job ends.
	Stream bool
	// OnUpdate receives every consumer state change while streaming.
	OnUpdate   func(Snapshot)
	HTTPClient *http.Client
}

// Client submits transcription jobs.
type Client struct {
	baseURL  string
	stream   bool
	onUpdate func(Snapshot)
	http     *http.Client
}

// New builds a Client. The default HTTP client has no overall timeout since
// a job can run for a long time; cancel the context instead.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("server URL is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:  base,
		stream:   opts.Stream,
		onUpdate: opts.OnUpdate,
		http:     httpClient,
	}, nil
}

// TranscribeFile uploads a local audio file.
func (c *Client) TranscribeFile(ctx context.Context, path string) (transcript.Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return transcript.Result{}, err
	}
	defer file.Close()

	body, contentType := multipartBody(file, filepath.Base(path))
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, body)
	if err != nil {
		return transcript.Result{}, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

// TranscribeURL asks the server to fetch and transcribe a remote URL.
func (c *Client) TranscribeURL(ctx context.Context, audioURL string) (transcript.Result, error) {
	payload, err := json.Marshal(map[string]string{"audioUrl": audioURL})
	if err != nil {
		return transcript.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+URLPath, bytes.NewReader(payload))
	if err != nil {
		return transcript.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (transcript.Result, error) {
	if c.stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transcript.Result{}, fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return c.consume(resp.Body)
	}
	return decodeJSONResponse(resp)
}

func (c *Client) consume(body io.Reader) (transcript.Result, error) {
	consumer := NewConsumer(c.onUpdate)
	if err := consumer.Consume(body); err != nil {
		return transcript.Result{}, err
	}
	snap := consumer.Snapshot()
	if snap.State == StateError {
		return transcript.Result{}, &JobError{Message: snap.Error}
	}
	return *snap.Result, nil
}

func decodeJSONResponse(resp *http.Response) (transcript.Result, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return transcript.Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			msg = body.Error
		}
		if msg == "" {
			msg = resp.Status
		}
		return transcript.Result{}, &JobError{StatusCode: resp.StatusCode, Message: msg}
	}

	var res transcript.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return transcript.Result{}, &StreamProtocolError{Reason: "malformed result body", Payload: string(raw), Err: err}
	}
	return res, nil
}

// multipartBody streams file as the upload field without buffering it.
func multipartBody(file io.Reader, name string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(UploadField, name)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}
