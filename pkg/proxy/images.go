package proxy

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zaigate/zaigate/pkg/proxy/types"
)

// maxImageSize bounds a fetched remote image (10MB decoded).
const maxImageSize = 10 * 1024 * 1024

// ImageInliner flattens multimodal message content into the plain text the
// upstream accepts, fetching remote image URLs and re-encoding them as
// embedded base64 data. It runs before account selection; any failure here
// is the client's error and charges no account.
type ImageInliner struct {
	httpClient *http.Client
}

// NewImageInliner creates an inliner with a bounded fetch timeout.
func NewImageInliner(timeout time.Duration) *ImageInliner {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ImageInliner{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FlattenContent converts message content (string or content-part array)
// into a single text string with images embedded as data URIs.
func (il *ImageInliner) FlattenContent(ctx context.Context, content any) (string, error) {
	switch v := content.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []any:
		return il.flattenParts(ctx, v)
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func (il *ImageInliner) flattenParts(ctx context.Context, parts []any) (string, error) {
	var segments []string
	for i, part := range parts {
		partMap, ok := part.(map[string]any)
		if !ok {
			continue
		}
		partType, _ := partMap["type"].(string)

		switch partType {
		case "text":
			if text, ok := partMap["text"].(string); ok {
				segments = append(segments, text)
			}
		case "image_url":
			urlMap, ok := partMap["image_url"].(map[string]any)
			if !ok {
				continue
			}
			url, _ := urlMap["url"].(string)
			if url == "" {
				continue
			}
			inlined, err := il.inlineImage(ctx, url)
			if err != nil {
				return "", &RequestError{
					Message: fmt.Sprintf("failed to inline image: %v", err),
					Code:    types.CodeImageFetchFailed,
					Param:   fmt.Sprintf("messages.content[%d].image_url", i),
				}
			}
			segments = append(segments, inlined)
		}
	}
	return strings.Join(segments, "\n"), nil
}

// inlineImage returns a markdown image whose source is an embedded data
// URI. Data URIs pass through unchanged; remote URLs are fetched.
func (il *ImageInliner) inlineImage(ctx context.Context, url string) (string, error) {
	if strings.HasPrefix(url, "data:") {
		return fmt.Sprintf("![image](%s)", url), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid image URL: %w", err)
	}

	resp, err := il.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("image read failed: %w", err)
	}
	if len(data) > maxImageSize {
		return "", fmt.Errorf("image exceeds maximum size of %d bytes", maxImageSize)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf("![image](data:%s;base64,%s)", mime, encoded), nil
}
