package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// RemoteEngine delegates inference to an HTTP inference service.
type RemoteEngine struct {
	baseURL string
	client  *http.Client
	labels  []string
	closed  atomic.Bool
}

type remoteBox struct {
	ClassID    float32    `json:"class_id"`
	Confidence float32    `json:"confidence"`
	BBox       [4]float32 `json:"bbox"`
}

type remotePrediction struct {
	ImageWidth  int         `json:"image_width"`
	ImageHeight int         `json:"image_height"`
	Boxes       []remoteBox `json:"boxes"`
}

// NewRemoteEngine fetches the label set from {baseURL}/classes.
func NewRemoteEngine(ctx context.Context, baseURL string, timeout time.Duration) (*RemoteEngine, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid inference url: %w", err)
	}

	e := &RemoteEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/classes", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch classes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch classes failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Classes []string `json:"classes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode classes: %w", err)
	}
	if len(result.Classes) == 0 {
		return nil, fmt.Errorf("inference service reported no classes")
	}
	e.labels = result.Classes

	return e, nil
}

func (e *RemoteEngine) Predict(path string, conf float64) (*Prediction, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := e.baseURL + "/predict?conf=" + strconv.FormatFloat(conf, 'f', -1, 64)
	req, err := http.NewRequest(http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result remotePrediction
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	boxes := make([]Box, 0, len(result.Boxes))
	for _, b := range result.Boxes {
		if b.Confidence < float32(conf) {
			continue
		}
		boxes = append(boxes, Box{ClassID: b.ClassID, Confidence: b.Confidence, XYXY: b.BBox})
	}

	return &Prediction{Boxes: boxes, Width: result.ImageWidth, Height: result.ImageHeight}, nil
}

func (e *RemoteEngine) ClassNames() []string {
	return append([]string(nil), e.labels...)
}

func (e *RemoteEngine) Close() error {
	e.closed.Store(true)
	e.client.CloseIdleConnections()
	return nil
}
