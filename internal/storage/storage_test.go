package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"interior/internal/config"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestObjectKeys(t *testing.T) {
	fixed := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	keys := newObjectKeys(" /tenant-a/ ")
	keys.now = func() time.Time { return fixed }

	cases := []struct {
		name string
		opts SaveOptions
		want string
	}{
		{"规范化", SaveOptions{Category: "Uploads", BaseName: "My Room.v2", Extension: ".PNG"}, "tenant-a/uploads/2026/03/09/my-roomv2.png"},
		{"默认值", SaveOptions{}, "tenant-a/misc/2026/03/09/" + strconv.FormatInt(fixed.UnixNano(), 10) + ".bin"},
		{"中文名被剔除", SaveOptions{Category: "outputs", BaseName: "客厅", Extension: "jpg"}, "tenant-a/outputs/2026/03/09/" + strconv.FormatInt(fixed.UnixNano(), 10) + ".jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := keys.For(tc.opts); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}

	if got := newObjectKeys("").For(SaveOptions{Category: "a", BaseName: "b", Extension: "png"}); strings.HasPrefix(got, "/") {
		t.Fatalf("无前缀时不应以 / 开头: %s", got)
	}
}

func TestCheckSave(t *testing.T) {
	if err := checkSave(context.Background(), nil); !errors.Is(err, errEmptyPayload) {
		t.Fatalf("err = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := checkSave(ctx, pngHeader); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := []struct {
		name string
		opts SaveOptions
		want string
	}{
		{"显式类型", SaveOptions{Extension: "png", ContentType: "image/webp"}, "image/webp"},
		{"按扩展名", SaveOptions{Extension: "png"}, "image/png"},
		{"未知扩展名", SaveOptions{Extension: ""}, "application/octet-stream"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := contentTypeFor(tc.opts); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestLocalStorageSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "/files/")
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	key, err := store.Save(context.Background(), pngHeader, SaveOptions{Category: "uploads", BaseName: "room", Extension: "png"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	written, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(written) != string(pngHeader) {
		t.Fatalf("内容不一致")
	}
	if got := store.PublicURL(key); got != "/files/"+key {
		t.Fatalf("PublicURL = %q", got)
	}

	t.Run("空内容", func(t *testing.T) {
		if _, err := store.Save(context.Background(), nil, SaveOptions{}); err == nil {
			t.Fatal("expected error for empty payload")
		}
	})

	t.Run("SkipIfExists", func(t *testing.T) {
		again, err := store.Save(context.Background(), []byte("other"), SaveOptions{Category: "uploads", BaseName: "room", Extension: "png", SkipIfExists: true})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if again != key {
			t.Fatalf("key changed: %s vs %s", again, key)
		}
		data, _ := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
		if string(data) != string(pngHeader) {
			t.Fatal("existing object overwritten")
		}
	})
}

func TestNewStorage(t *testing.T) {
	cfg := config.Config{StorageType: "LOCAL", StorageLocalDir: t.TempDir()}
	store, err := NewStorage(cfg)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	if _, ok := store.(LocalBaseDirProvider); !ok {
		t.Fatal("local storage should expose its base dir")
	}

	if _, err := NewStorage(config.Config{StorageType: "ftp"}); err == nil || !strings.Contains(err.Error(), "cos, local, oss, r2, s3") {
		t.Fatalf("expected unsupported type error listing backends, got %v", err)
	}
	if _, err := NewStorage(config.Config{StorageType: TypeS3}); err == nil {
		t.Fatal("expected missing bucket error")
	}
	if _, err := NewStorage(config.Config{
		StorageType:              TypeR2,
		StorageR2Bucket:          "b",
		StorageR2AccountID:       "acc",
		StorageR2AccessKeyID:     "k",
		StorageR2SecretAccessKey: "s",
		StoragePublicBaseURL:     "/files",
	}); err == nil {
		t.Fatal("R2 without an absolute public url should fail")
	}
}

func TestR2Endpoint(t *testing.T) {
	got, err := r2Endpoint(config.Config{StorageR2AccountID: " acc "})
	if err != nil || got != "https://acc.r2.cloudflarestorage.com" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = r2Endpoint(config.Config{StorageR2AccountID: "acc", StorageR2Endpoint: "https://custom.example.com"})
	if err != nil || got != "https://custom.example.com" {
		t.Fatalf("显式 endpoint 应优先: %q, %v", got, err)
	}
	if _, err := r2Endpoint(config.Config{}); err == nil {
		t.Fatal("expected error without endpoint and account")
	}
}

func TestOSSPublicBase(t *testing.T) {
	if got := ossPublicBase("https://oss-cn-hangzhou.aliyuncs.com/", "rooms"); got != "https://rooms.oss-cn-hangzhou.aliyuncs.com" {
		t.Fatalf("got %q", got)
	}
	if got := ossPublicBase("oss-cn-beijing.aliyuncs.com", "rooms"); got != "https://rooms.oss-cn-beijing.aliyuncs.com" {
		t.Fatalf("got %q", got)
	}
}

func TestIsS3NotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"typed NotFound", fmt.Errorf("head: %w", &types.NotFound{}), true},
		{"NoSuchKey 错误码", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"权限错误", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"网络错误", errors.New("dial tcp: timeout"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isS3NotFound(tc.err); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestAbsolutePublicBase(t *testing.T) {
	if got := absolutePublicBase("https://cdn.example.com/", "https://fallback"); got != "https://cdn.example.com" {
		t.Fatalf("got %q", got)
	}
	if got := absolutePublicBase("/files", "https://bucket.s3.us-east-1.amazonaws.com/"); got != "https://bucket.s3.us-east-1.amazonaws.com" {
		t.Fatalf("got %q", got)
	}
}

func TestUploaderFromBase64(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "/files")
	if err != nil {
		t.Fatal(err)
	}
	uploader := NewUploader(store, nil)
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	t.Run("data URL", func(t *testing.T) {
		res, err := uploader.UploadFromBase64(context.Background(), "data:image/png;base64,"+encoded, UploadOptions{Bucket: "uploads", FileName: "living.jpg"})
		if err != nil {
			t.Fatalf("UploadFromBase64: %v", err)
		}
		// 扩展名以探测结果为准
		if !strings.HasSuffix(res.Path, "/living.png") {
			t.Fatalf("path = %s", res.Path)
		}
		if res.URL != "/files/"+res.Path {
			t.Fatalf("url = %s", res.URL)
		}
	})

	t.Run("裸 base64", func(t *testing.T) {
		res, err := uploader.Upload(context.Background(), encoded, UploadOptions{Bucket: "uploads"})
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if !strings.HasSuffix(res.Path, ".png") {
			t.Fatalf("path = %s", res.Path)
		}
	})

	t.Run("非图片", func(t *testing.T) {
		payload := base64.StdEncoding.EncodeToString([]byte("hello world"))
		if _, err := uploader.UploadFromBase64(context.Background(), payload, UploadOptions{}); err == nil {
			t.Fatal("expected error for non-image payload")
		}
	})
}

func TestUploaderFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer server.Close()

	store, err := NewLocalStorage(t.TempDir(), "/files")
	if err != nil {
		t.Fatal(err)
	}
	uploader := NewUploader(store, server.Client())

	res, err := uploader.UploadFromURL(context.Background(), server.URL+"/out.png", UploadOptions{Bucket: "outputs", FileName: "gen-7"})
	if err != nil {
		t.Fatalf("UploadFromURL: %v", err)
	}
	if !strings.HasPrefix(res.Path, "outputs/") || !strings.HasSuffix(res.Path, "/gen-7.png") {
		t.Fatalf("path = %s", res.Path)
	}

	if _, err := uploader.UploadFromURL(context.Background(), server.URL+"/missing.png", UploadOptions{}); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := uploader.UploadFromURL(context.Background(), "ftp://example.com/a.png", UploadOptions{}); err == nil {
		t.Fatal("expected error for non-http url")
	}
}
