// Package upload proxies profile image uploads to the object storage
// endpoint.
//
// The storage contract is enforced on this side before anything is
// forwarded: at most 1,000,000 bytes, sniffed MIME type in
// {jpeg, png, gif}. Upstream failures come back as inline error payloads,
// never as unhandled faults.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/peerswapd/peerswap/internal/analytics"
	"github.com/peerswapd/peerswap/internal/logging"
	"github.com/peerswapd/peerswap/internal/metrics"
	"github.com/peerswapd/peerswap/internal/validation"
)

var (
	ErrTooLarge        = errors.New("upload: image exceeds 1000000 bytes")
	ErrUnsupportedType = errors.New("upload: image type must be jpeg, png, or gif")
)

// DefaultTimeout bounds the forwarded storage request.
const DefaultTimeout = 30 * time.Second

// Response mirrors the storage endpoint's reply.
type Response struct {
	Data     json.RawMessage `json:"data,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Proxy forwards validated profile images to object storage.
type Proxy struct {
	storageURL string
	http       *http.Client
}

// Option configures the proxy.
type Option func(*Proxy)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(h *http.Client) Option {
	return func(p *Proxy) {
		p.http = h
	}
}

// New creates an upload proxy targeting storageURL.
func New(storageURL string, opts ...Option) *Proxy {
	p := &Proxy{
		storageURL: storageURL,
		http:       &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks the image payload against the storage constraints.
func Validate(image []byte) error {
	if len(image) > validation.MaxUploadBytes {
		return ErrTooLarge
	}
	if !validation.IsAllowedImageType(http.DetectContentType(image)) {
		return ErrUnsupportedType
	}
	return nil
}

// Forward sends a validated image to the storage endpoint and returns its
// decoded response.
func (p *Proxy) Forward(ctx context.Context, address, existingURL, filename string, image []byte) (*Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("address", address); err != nil {
		return nil, fmt.Errorf("upload: write address field: %w", err)
	}
	if existingURL != "" {
		if err := mw.WriteField("user_existing_image_url", existingURL); err != nil {
			return nil, fmt.Errorf("upload: write existing url field: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("upload: create file part: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return nil, fmt.Errorf("upload: write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload: finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.storageURL, &body)
	if err != nil {
		return nil, fmt.Errorf("upload: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload: decode storage response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && out.Error == "" {
		out.Error = fmt.Sprintf("storage returned status %d", resp.StatusCode)
	}
	return &out, nil
}

// Handler provides the HTTP endpoint for profile image uploads.
type Handler struct {
	proxy    *Proxy
	recorder *analytics.Recorder
}

// NewHandler creates an upload handler. recorder may be nil.
func NewHandler(proxy *Proxy, recorder *analytics.Recorder) *Handler {
	return &Handler{proxy: proxy, recorder: recorder}
}

// RegisterRoutes sets up upload routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/profile-image", h.UploadImage)
}

// UploadImage handles POST /v1/profile-image
func (h *Handler) UploadImage(c *gin.Context) {
	address := validation.SanitizeAddress(c.PostForm("address"))
	if !validation.IsValidEthAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid Ethereum address (0x...)",
		})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_file",
			"message": "multipart field 'file' is required",
		})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, validation.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unreadable_file",
			"message": "could not read uploaded file",
		})
		return
	}

	if err := Validate(image); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		status := http.StatusRequestEntityTooLarge
		code := "file_too_large"
		if errors.Is(err, ErrUnsupportedType) {
			status = http.StatusUnsupportedMediaType
			code = "unsupported_type"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	resp, err := h.proxy.Forward(
		c.Request.Context(),
		address,
		c.PostForm("user_existing_image_url"),
		header.Filename,
		image,
	)
	if err != nil {
		logging.L(c.Request.Context()).Error("image upload failed", "address", address, "error", err)
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "storage_unavailable",
			"message": "Image upload failed, try again later",
		})
		return
	}
	if resp.Error != "" {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage_error", "message": resp.Error})
		return
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	h.recorder.Record(c.Request.Context(), analytics.EventImageUploaded, address, "", "url="+resp.ImageURL)
	c.JSON(http.StatusOK, resp)
}
