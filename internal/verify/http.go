package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

// HTTPVerifier talks to a remote face-verification service over a plain JSON
// POST. Every call is bounded by the configured timeout on top of whatever
// deadline the caller's context carries.
type HTTPVerifier struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

var _ Verifier = (*HTTPVerifier)(nil)

func NewHTTPVerifier(baseURL string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	StudentID uint   `json:"studentID"`
	Image     string `json:"image"` // base64-encoded capture
}

func (v *HTTPVerifier) Verify(ctx context.Context, studentID uint, image []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	payload, err := json.Marshal(verifyRequest{
		StudentID: studentID,
		Image:     base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		logger.Err("Face verification call failed:", err)
		return Result{}, fmt.Errorf("%w: %s", ErrUpstream, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Err("Face verification service returned status", resp.StatusCode)
		return Result{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrUpstream, err.Error())
	}
	return result, nil
}
