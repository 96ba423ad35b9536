package summarizer

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

	"github.com/tidwall/gjson"
)

// Hugging Face Inference API defaults.
const (
	DefaultEndpoint         = "https://api-inference.huggingface.co/models"
	DefaultSummaryModel     = "sshleifer/distilbart-cnn-12-6"
	DefaultTranslationModel = "Helsinki-NLP/opus-mt-en-zh"
	DefaultTimeout          = 60 * time.Second
)

// ErrInference is wrapped by every failed inference call.
var ErrInference = errors.New("inference failed")

// HFConfig configures the Hugging Face client.
type HFConfig struct {
	Endpoint         string
	Token            string
	SummaryModel     string
	TranslationModel string
	Timeout          time.Duration
}

// HuggingFace is a Model backed by the hosted inference API.
type HuggingFace struct {
	cfg    HFConfig
	client *http.Client
}

// NewHuggingFace builds a client. A nil httpClient gets one with cfg.Timeout.
func NewHuggingFace(cfg HFConfig, httpClient *http.Client) *HuggingFace {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = DefaultSummaryModel
	}
	if cfg.TranslationModel == "" {
		cfg.TranslationModel = DefaultTranslationModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &HuggingFace{cfg: cfg, client: httpClient}
}

type inferenceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Summarize implements Model.
func (h *HuggingFace) Summarize(ctx context.Context, text string, minLength, maxLength int) (string, error) {
	return h.infer(ctx, h.cfg.SummaryModel, inferenceRequest{
		Inputs: text,
		Parameters: map[string]any{
			"min_length": minLength,
			"max_length": maxLength,
			"do_sample":  false,
		},
	}, "summary_text")
}

// Translate implements Model.
func (h *HuggingFace) Translate(ctx context.Context, text string) (string, error) {
	return h.infer(ctx, h.cfg.TranslationModel, inferenceRequest{
		Inputs:     text,
		Parameters: map[string]any{"max_length": 512},
	}, "translation_text")
}

func (h *HuggingFace) infer(ctx context.Context, model string, payload inferenceRequest, field string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint+"/"+model, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInference, model, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read %s response: %w", ErrInference, model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s: status %d: %s", ErrInference, model, resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("%w: %s: invalid json", ErrInference, model)
	}
	result := gjson.GetBytes(raw, "0."+field)
	if !result.Exists() {
		result = gjson.GetBytes(raw, field)
	}
	if !result.Exists() {
		return "", fmt.Errorf("%w: %s: response has no %s", ErrInference, model, field)
	}
	return strings.TrimSpace(result.String()), nil
}
