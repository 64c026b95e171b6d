package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zaigate/zaigate/pkg/proxy/types"
)

// tiny 1x1 PNG header bytes, enough for content-type sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestFlattenContentString(t *testing.T) {
	il := NewImageInliner(0)

	tests := []struct {
		name    string
		content any
		want    string
	}{
		{"nil content", nil, ""},
		{"plain string", "hello", "hello"},
		{"number falls back to stringification", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := il.FlattenContent(context.Background(), tt.content)
			if err != nil {
				t.Fatalf("FlattenContent: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlattenContentParts(t *testing.T) {
	il := NewImageInliner(0)

	content := []any{
		map[string]any{"type": "text", "text": "first"},
		map[string]any{"type": "text", "text": "second"},
		"not a map, skipped",
	}
	got, err := il.FlattenContent(context.Background(), content)
	if err != nil {
		t.Fatalf("FlattenContent: %v", err)
	}
	if got != "first\nsecond" {
		t.Errorf("got %q", got)
	}
}

func TestFlattenContentDataURIPassThrough(t *testing.T) {
	il := NewImageInliner(0)

	uri := "data:image/png;base64,iVBORw0KGgo="
	content := []any{
		map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": uri},
		},
	}
	got, err := il.FlattenContent(context.Background(), content)
	if err != nil {
		t.Fatalf("FlattenContent: %v", err)
	}
	if got != "![image]("+uri+")" {
		t.Errorf("got %q", got)
	}
}

func TestFlattenContentFetchesRemoteImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes) //nolint:errcheck
	}))
	defer srv.Close()

	il := NewImageInliner(0)
	content := []any{
		map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": srv.URL + "/pic.png"},
		},
	}
	got, err := il.FlattenContent(context.Background(), content)
	if err != nil {
		t.Fatalf("FlattenContent: %v", err)
	}
	if !strings.HasPrefix(got, "![image](data:image/png;base64,") {
		t.Errorf("got %q, want embedded data URI", got)
	}
}

func TestFlattenContentFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	il := NewImageInliner(0)
	content := []any{
		map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": srv.URL + "/missing.png"},
		},
	}
	_, err := il.FlattenContent(context.Background(), content)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %T, want *RequestError", err)
	}
	if reqErr.Code != types.CodeImageFetchFailed {
		t.Errorf("code = %q, want %q", reqErr.Code, types.CodeImageFetchFailed)
	}
	if !strings.Contains(reqErr.Param, "image_url") {
		t.Errorf("param = %q", reqErr.Param)
	}
}
