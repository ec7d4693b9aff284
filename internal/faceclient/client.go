// Package faceclient talks to the external face recognition service.
// Only the network contract lives here; the matching model itself is an
// external collaborator.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/metrics"
)

// VerifyResult is the structured outcome of a 1:1 verification. A
// non-match is a result, not a transport error.
type VerifyResult struct {
	Match   bool
	Code    string // stable taxonomy code when Match is false
	Message string
}

// Recognizer is the capability the gate and registrar depend on, so tests
// can substitute a deterministic fake without a network.
type Recognizer interface {
	// ProcessFace returns the embedding vector for one enrollment image.
	ProcessFace(ctx context.Context, image []byte, filename, studentID string) ([]float64, error)
	// VerifyFace matches a live capture against the student's template.
	VerifyFace(ctx context.Context, image []byte, filename string, classScheduleID int64, studentID string) (*VerifyResult, error)
	// ValidateQuality runs the service-side quality gate on one image.
	ValidateQuality(ctx context.Context, image []byte, filename string) error
}

// Client is the HTTP Recognizer. Registration calls get a longer timeout
// than verification calls.
type Client struct {
	BaseURL string
	APIKey  string

	verifyHTTP *http.Client
	enrollHTTP *http.Client
}

// New creates a client with per-purpose timeouts.
func New(baseURL, apiKey string, verifyTimeout, registerTimeout time.Duration) *Client {
	if verifyTimeout <= 0 {
		verifyTimeout = 10 * time.Second
	}
	if registerTimeout <= 0 {
		registerTimeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		verifyHTTP: &http.Client{Timeout: verifyTimeout},
		enrollHTTP: &http.Client{Timeout: registerTimeout},
	}
}

// envelope is the service's common response shape.
type envelope struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// reasonCodes normalizes the service's structured reason codes onto the
// stable taxonomy.
var reasonCodes = map[string]string{
	"NO_FACE_DETECTED":        apperr.CodeNoFaceDetected,
	"NoFaceDetectedError":     apperr.CodeNoFaceDetected,
	"MULTIPLE_FACES_DETECTED": apperr.CodeMultipleFaces,
	"MultipleFacesError":      apperr.CodeMultipleFaces,
	"LOW_QUALITY_IMAGE":       apperr.CodeLowQualityImage,
	"LowQualityImageError":    apperr.CodeLowQualityImage,
	"FACE_MISMATCH":           apperr.CodeFaceMismatch,
	"VERIFICATION_FAILED":     apperr.CodeFaceMismatch,
}

func normalizeCode(code, fallback string) string {
	if mapped, ok := reasonCodes[code]; ok {
		return mapped
	}
	if code != "" {
		return code
	}
	return fallback
}

// ProcessFace calls POST /api/process-face and returns the embedding.
func (c *Client) ProcessFace(ctx context.Context, image []byte, filename, studentID string) ([]float64, error) {
	env, err := c.post(ctx, c.enrollHTTP, "/api/process-face", image, filename, map[string]string{
		"student_id": studentID,
	})
	if err != nil {
		return nil, err
	}
	if env.Status != "success" {
		code := normalizeCode(env.Code, apperr.CodeNoFaceDetected)
		return nil, apperr.New(apperr.Validation, code, serviceMessage(env))
	}
	if len(env.Data.Embedding) == 0 {
		return nil, apperr.New(apperr.Dependency, apperr.CodeServiceError, "recognition service returned an empty embedding")
	}
	return env.Data.Embedding, nil
}

// VerifyFace calls POST /api/verify-face. A negative match comes back as
// a VerifyResult carrying the service's reason code.
func (c *Client) VerifyFace(ctx context.Context, image []byte, filename string, classScheduleID int64, studentID string) (*VerifyResult, error) {
	env, err := c.post(ctx, c.verifyHTTP, "/api/verify-face", image, filename, map[string]string{
		"class_id":   strconv.FormatInt(classScheduleID, 10),
		"student_id": studentID,
	})
	if err != nil {
		return nil, err
	}
	if env.Status == "success" {
		return &VerifyResult{Match: true}, nil
	}
	return &VerifyResult{
		Match:   false,
		Code:    normalizeCode(env.Code, apperr.CodeFaceMismatch),
		Message: serviceMessage(env),
	}, nil
}

// ValidateQuality calls POST /api/validate-quality.
func (c *Client) ValidateQuality(ctx context.Context, image []byte, filename string) error {
	env, err := c.post(ctx, c.verifyHTTP, "/api/validate-quality", image, filename, nil)
	if err != nil {
		return err
	}
	if env.Status != "success" {
		code := normalizeCode(env.Code, apperr.CodeLowQualityImage)
		return apperr.New(apperr.Validation, code, serviceMessage(env))
	}
	return nil
}

func serviceMessage(env *envelope) string {
	if env.Message != "" {
		return env.Message
	}
	return "rejected by recognition service"
}

// post sends a multipart request and decodes the envelope. Network
// failure, non-2xx and malformed JSON all surface as Dependency errors.
func (c *Client) post(ctx context.Context, hc *http.Client, path string, image []byte, filename string, fields map[string]string) (*envelope, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewReader(image)); err != nil {
		return nil, err
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	metrics.FaceRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, apperr.Wrap(apperr.Dependency, apperr.CodeServiceError, "recognition service unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Dependency, apperr.CodeServiceError, "reading recognition response failed", err)
	}

	var env envelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil {
		return nil, apperr.Wrap(apperr.Dependency, apperr.CodeServiceError,
			fmt.Sprintf("malformed recognition response (%s)", resp.Status), jsonErr)
	}

	// The service reports business rejections with 4xx and a structured
	// code; anything else non-2xx is a system failure.
	if resp.StatusCode >= 500 || (resp.StatusCode >= 300 && env.Code == "") {
		return nil, apperr.Newf(apperr.Dependency, apperr.CodeServiceError,
			"recognition service error %s: %s", resp.Status, truncate(body, 200))
	}
	return &env, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
