package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

// Uploader off-loads inline image payloads to durable file storage
// before a record is persisted.
type Uploader interface {
	Upload(ctx context.Context, data []byte, nameHint string) (*UploadResult, error)
}

// UploadResult is the durable reference returned by the store.
type UploadResult struct {
	URL    string `json:"url"`
	FileID string `json:"fileId"`
}

type Config struct {
	UploadURL  string
	PrivateKey string
	Folder     string
}

// HTTPUploader posts multipart uploads to an imagekit-style endpoint.
type HTTPUploader struct {
	config Config
	client *http.Client
	logger ectologger.Logger
}

func NewHTTPUploader(config Config, logger ectologger.Logger) *HTTPUploader {
	return &HTTPUploader{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, data []byte, nameHint string) (*UploadResult, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.HTTPUploader.Upload")
	defer span.End()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("fileName", nameHint); err != nil {
		return nil, err
	}
	if err := writer.WriteField("folder", u.config.Folder); err != nil {
		return nil, err
	}
	part, err := writer.CreateFormFile("file", nameHint)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.config.UploadURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(u.config.PrivateKey, "")

	resp, err := u.client.Do(req)
	if err != nil {
		u.logger.WithContext(ctx).WithError(err).Error("Image upload request failed")
		return nil, httperror.NewHTTPError(http.StatusBadGateway, "image upload failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.logger.WithContext(ctx).WithFields(map[string]any{"status": resp.StatusCode}).Error("Image upload rejected")
		return nil, httperror.NewHTTPError(http.StatusBadGateway, "image upload failed")
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadGateway, "image upload returned an invalid response")
	}
	return &result, nil
}

// IsInlineImage reports whether ref embeds binary data instead of
// referencing a stored file.
func IsInlineImage(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}

// DecodeInlineImage extracts the payload of a data URI.
func DecodeInlineImage(ref string) ([]byte, error) {
	idx := strings.Index(ref, ",")
	if idx < 0 {
		return nil, fmt.Errorf("malformed data uri")
	}
	meta, payload := ref[:idx], ref[idx+1:]
	if strings.Contains(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	return []byte(payload), nil
}
