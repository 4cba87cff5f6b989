// Package oracle provides the client for the analysis/synthesis service
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/sageorb/platform/internal/errors"
	"github.com/sageorb/platform/internal/mode"
	"github.com/sageorb/platform/internal/resilience"
	"github.com/sageorb/platform/internal/trace"
)

// Analysis is the structured response for one utterance. Immutable once
// received; the session holds it until the next cycle supersedes it.
type Analysis struct {
	Emotion          string `json:"emotion"`
	Wisdom           string `json:"wisdom"`
	BreathingPattern string `json:"breathing_pattern,omitempty"`
	Reasoning        string `json:"reasoning,omitempty"`
}

type analyzeRequest struct {
	Audio        []byte    `json:"audio"` // float32 little-endian PCM, base64 on the wire
	SampleRate   int       `json:"sample_rate"`
	CulturalMode mode.Mode `json:"cultural_mode"`
}

type synthesizeRequest struct {
	Text         string    `json:"text"`
	CulturalMode mode.Mode `json:"cultural_mode"`
}

type synthesizeResponse struct {
	Audio []byte `json:"audio"` // WAV payload, base64 on the wire
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to the oracle service. Calls run through a circuit breaker so
// a dead backend fails fast; the session still treats any failure as a
// single processing failure with no retry.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.Breaker
}

// New creates an oracle client.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: &trace.Transport{},
		},
		breaker: resilience.New(resilience.OracleConfig()),
	}
}

// Analyze sends a finalized utterance for analysis.
func (c *Client) Analyze(ctx context.Context, pcm []byte, sampleRate int, m mode.Mode) (*Analysis, error) {
	ctx, span := trace.StartSpan(ctx, "oracle_analyze")
	defer span.End()
	span.SetAttr("bytes", len(pcm))
	span.SetAttr("mode", string(m))

	return resilience.ExecuteWithResult(c.breaker, func() (*Analysis, error) {
		var result Analysis
		err := c.post(ctx, analyzePath, analyzeRequest{
			Audio:        pcm,
			SampleRate:   sampleRate,
			CulturalMode: m,
		}, &result, apperrors.CodeAnalysisFailed)
		if err != nil {
			span.SetAttr("error", err.Error())
			return nil, err
		}
		return &result, nil
	})
}

// Synthesize turns response text into a WAV speech payload.
func (c *Client) Synthesize(ctx context.Context, text string, m mode.Mode) ([]byte, error) {
	ctx, span := trace.StartSpan(ctx, "oracle_synthesize")
	defer span.End()
	span.SetAttr("text_len", len(text))

	return resilience.ExecuteWithResult(c.breaker, func() ([]byte, error) {
		var result synthesizeResponse
		err := c.post(ctx, synthesizePath, synthesizeRequest{
			Text:         text,
			CulturalMode: m,
		}, &result, apperrors.CodeSynthesisFailed)
		if err != nil {
			span.SetAttr("error", err.Error())
			return nil, err
		}
		if len(result.Audio) == 0 {
			return nil, apperrors.New(apperrors.CodeSynthesisFailed, "oracle returned empty speech payload")
		}
		return result.Audio, nil
	})
}

// Health probes the service. Used with resilience.Retry at boot; never on
// the session path.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to build health request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "oracle unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.CodeUnavailable, "oracle health returned %d", resp.StatusCode)
	}
	return nil
}

// post sends a JSON request and decodes the JSON response, converting HTTP
// and transport failures to AppErrors with the given fallback code.
func (c *Client) post(ctx context.Context, path string, body, out any, failCode apperrors.Code) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(err, apperrors.CodeTimeout, "oracle call timed out")
		}
		return apperrors.Wrap(err, failCode, "oracle call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readError(resp.Body)
		code := apperrors.FromHTTPStatus(resp.StatusCode)
		if code == apperrors.CodeUnknown {
			code = failCode
		}
		return apperrors.Newf(code, "oracle %s returned %d: %s", path, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, failCode, "malformed oracle response")
	}
	return nil
}

func readError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable body"
	}
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		return er.Error
	}
	return fmt.Sprintf("%q", string(data))
}
