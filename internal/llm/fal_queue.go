package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"interior/internal/config"
	"interior/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	falDefaultQueueBaseURL = "https://queue.fal.run"
	falMaxBodyBytes        = 4 << 20
)

// errTransport marks failures where the provider never gave a usable answer.
var errTransport = errors.New("fal transport error")

// FalQueue talks to the fal.ai queue API.
type FalQueue struct {
	apiKey         string
	baseURL        string
	model          string
	inferenceSteps int
	guidanceScale  float64
	imageSize      string
	httpClient     *http.Client
}

func NewFalQueue(cfg config.Config, httpClient *http.Client) (*FalQueue, error) {
	apiKey := strings.TrimSpace(cfg.FalAPIKey)
	if apiKey == "" {
		return nil, errors.New("fal.ai api key is not configured")
	}
	model := strings.Trim(strings.TrimSpace(cfg.FalModel), "/")
	if model == "" {
		return nil, errors.New("fal.ai model is not configured")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.FalQueueBaseURL), "/")
	if baseURL == "" {
		baseURL = falDefaultQueueBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &FalQueue{
		apiKey:         apiKey,
		baseURL:        baseURL,
		model:          model,
		inferenceSteps: cfg.FalInferenceSteps,
		guidanceScale:  cfg.FalGuidanceScale,
		imageSize:      cfg.FalImageSize,
		httpClient:     httpClient,
	}, nil
}

// appID is the "owner/alias" part of the model path; queue status and result
// endpoints live under it.
func (f *FalQueue) appID() string {
	parts := strings.Split(f.model, "/")
	if len(parts) <= 2 {
		return f.model
	}
	return parts[0] + "/" + parts[1]
}

func (f *FalQueue) statusURL(requestID string) string {
	return fmt.Sprintf("%s/%s/requests/%s/status", f.baseURL, f.appID(), requestID)
}

func (f *FalQueue) resultURL(requestID string) string {
	return fmt.Sprintf("%s/%s/requests/%s", f.baseURL, f.appID(), requestID)
}

// Submit enqueues the job and returns the provider request id without
// waiting for completion.
func (f *FalQueue) Submit(ctx context.Context, spec JobSpec) (string, error) {
	if f == nil {
		return "", errors.New("fal.ai provider not initialised")
	}
	input, err := f.buildInput(spec)
	if err != nil {
		return "", err
	}

	logger := providerLogger(ctx, f.model, "")
	logger.WithFields(logrus.Fields{
		"prompt_preview": logSnippet(spec.Prompt),
		"image_size":     input["image_size"],
	}).Info("falai_submit_start")

	bs, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("fal.ai marshal request: %w", err)
	}

	start := time.Now()
	status, body, err := f.do(ctx, http.MethodPost, f.baseURL+"/"+f.model, bs)
	metrics.ProviderLatency.WithLabelValues("submit").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("fal.ai submit request: %w", err)
	}
	if status >= 400 {
		return "", fmt.Errorf("fal.ai http %d: %s", status, logSnippet(string(body)))
	}

	var submission falSubmitResponse
	if err := json.Unmarshal(body, &submission); err != nil {
		return "", fmt.Errorf("fal.ai decode submission: %w", err)
	}
	if submission.Error != nil && submission.Error.Message != "" {
		return "", fmt.Errorf("fal.ai error: %s", submission.Error.Message)
	}
	requestID := strings.TrimSpace(submission.RequestID)
	if requestID == "" {
		return "", errors.New("fal.ai submission returned no request id")
	}

	logger.WithField("request_id", requestID).Info("falai_submit_accepted")
	return requestID, nil
}

func (f *FalQueue) buildInput(spec JobSpec) (map[string]any, error) {
	prompt := strings.TrimSpace(spec.Prompt)
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}
	imageURL := strings.TrimSpace(spec.ImageURL)
	if imageURL == "" {
		return nil, errors.New("image-to-image job requires a reference image")
	}

	steps := spec.InferenceSteps
	if steps <= 0 {
		steps = f.inferenceSteps
	}
	guidance := spec.GuidanceScale
	if guidance <= 0 {
		guidance = f.guidanceScale
	}
	size := strings.TrimSpace(spec.ImageSize)
	if size == "" {
		size = f.imageSize
	}

	input := map[string]any{
		"prompt":     prompt,
		"image_url":  imageURL,
		"num_images": 1,
	}
	if steps > 0 {
		input["num_inference_steps"] = steps
	}
	if guidance > 0 {
		input["guidance_scale"] = guidance
	}
	if size != "" {
		input["image_size"] = size
	}
	return input, nil
}

// pollManaged follows the queue protocol: status endpoint first, result
// endpoint once the queue reports completion.
func (f *FalQueue) pollManaged(ctx context.Context, requestID string) pollOutcome {
	code, body, err := f.do(ctx, http.MethodGet, f.statusURL(requestID), nil)
	if err != nil {
		return transportFailure(pollPathManaged, err)
	}
	if code >= 400 {
		return transportFailure(pollPathManaged, fmt.Errorf("status http %d: %s", code, logSnippet(string(body))))
	}

	var st falStatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		return transportFailure(pollPathManaged, fmt.Errorf("status decode: %w", err))
	}
	if strings.TrimSpace(st.Status) == "" {
		return transportFailure(pollPathManaged, errors.New("status missing from response"))
	}

	switch normalizeStatus(st.Status) {
	case StatusFailed:
		msg := ""
		if st.Error != nil {
			msg = st.Error.Message
		}
		return providerFailure(pollPathManaged, msg)
	case StatusProcessing:
		return pollOutcome{path: pollPathManaged, kind: outcomePending, rawStatus: st.Status}
	}

	resultURL := strings.TrimSpace(st.ResponseURL)
	if resultURL == "" {
		resultURL = f.resultURL(requestID)
	}
	code, body, err = f.do(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return transportFailure(pollPathManaged, err)
	}
	if code >= 500 {
		return transportFailure(pollPathManaged, fmt.Errorf("result http %d", code))
	}

	envelope, err := decodeResultEnvelope(body)
	if err != nil {
		return transportFailure(pollPathManaged, fmt.Errorf("result decode: %w", err))
	}
	switch {
	case code == http.StatusUnprocessableEntity:
		// 队列已完成但输入校验失败：服务商明确失败
		return providerFailure(pollPathManaged, envelope.errorMessage())
	case code >= 400:
		// 401/403/404/429 等都可能是暂时的，交给 REST 回退
		return transportFailure(pollPathManaged, fmt.Errorf("result http %d: %s", code, logSnippet(string(body))))
	}
	return completedOutcome(pollPathManaged, envelope)
}

// pollREST is the fallback path: one GET against the result endpoint with a
// loose reading of whatever comes back.
func (f *FalQueue) pollREST(ctx context.Context, requestID string) pollOutcome {
	code, body, err := f.do(ctx, http.MethodGet, f.resultURL(requestID), nil)
	if err != nil {
		return transportFailure(pollPathREST, err)
	}
	if code == http.StatusAccepted {
		return pollOutcome{path: pollPathREST, kind: outcomePending}
	}

	envelope, decodeErr := decodeResultEnvelope(body)
	if decodeErr != nil {
		return transportFailure(pollPathREST, fmt.Errorf("rest decode (http %d): %w", code, decodeErr))
	}

	raw := envelope.status()
	if raw != "" && normalizeStatus(raw) == StatusFailed {
		return providerFailure(pollPathREST, envelope.errorMessage())
	}
	if envelope.outputURL() != "" {
		return completedOutcome(pollPathREST, envelope)
	}
	if code >= 400 {
		return transportFailure(pollPathREST, fmt.Errorf("rest http %d: %s", code, logSnippet(string(body))))
	}
	if raw != "" && normalizeStatus(raw) == StatusCompleted {
		return completedOutcome(pollPathREST, envelope)
	}
	return pollOutcome{path: pollPathREST, kind: outcomePending, rawStatus: raw}
}

func (f *FalQueue) do(ctx context.Context, method, url string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+f.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, falMaxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
