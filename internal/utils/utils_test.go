package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeImagePayload(t *testing.T) {
	raw := testPNG(t)
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "data url", payload: "data:image/png;base64," + encoded},
		{name: "裸 base64", payload: encoded},
		{name: "空", payload: "  ", wantErr: true},
		{name: "非法 base64", payload: "data:image/png;base64,@@@", wantErr: true},
		{name: "非图片", payload: base64.StdEncoding.EncodeToString([]byte("hello world")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, mimeType, ext, err := DecodeImagePayload(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(data, raw) || mimeType != "image/png" || ext != "png" {
				t.Fatalf("unexpected decode result %s %s", mimeType, ext)
			}
		})
	}
}

func TestSplitAndEnsureDataURL(t *testing.T) {
	mimeType, payload := SplitDataURL("data:image/webp;base64,AAAA")
	if mimeType != "image/webp" || payload != "AAAA" {
		t.Fatalf("unexpected split %s %s", mimeType, payload)
	}
	if got := EnsureDataURL("AAAA", ""); got != "data:image/jpeg;base64,AAAA" {
		t.Fatalf("unexpected data url %s", got)
	}
	if got := EnsureDataURL("data:image/png;base64,AAAA", "image/jpeg"); got != "data:image/png;base64,AAAA" {
		t.Fatalf("expected data url to be kept, got %s", got)
	}
	if mimeType, payload := SplitDataURL("data:image/png,AAAA"); mimeType != "" || payload != "" {
		t.Fatalf("缺少 base64 标记应返回空, got %q %q", mimeType, payload)
	}
	if _, payload := SplitDataURL("AAAA"); payload != "AAAA" {
		t.Fatalf("裸 base64 应原样返回, got %q", payload)
	}
}

func TestIsRemoteURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/a.png": true,
		" HTTP://example.com":       true,
		"ftp://example.com/a.png":   false,
		"data:image/png;base64,AA":  false,
		"example.com/a.png":         false,
	}
	for value, want := range cases {
		if got := IsRemoteURL(value); got != want {
			t.Fatalf("IsRemoteURL(%q) = %v, want %v", value, got, want)
		}
	}
}

func TestDownloadImage(t *testing.T) {
	raw := testPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(raw)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	data, ct, err := DownloadImage(context.Background(), srv.Client(), srv.URL+"/ok.png", 0)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if ct != "image/png" || !bytes.Equal(data, raw) {
		t.Fatalf("unexpected download result %s", ct)
	}

	if _, _, err := DownloadImage(context.Background(), srv.Client(), srv.URL+"/missing.png", 0); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, _, err := DownloadImage(context.Background(), srv.Client(), srv.URL+"/ok.png", 10); err == nil {
		t.Fatal("expected size cap error")
	}
	if _, _, err := DownloadImage(context.Background(), nil, "ftp://example.com/a.png", 0); err == nil {
		t.Fatal("expected scheme error")
	}
}
