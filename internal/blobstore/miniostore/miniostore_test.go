package miniostore

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"

	"github.com/mohammed-shakir/pvgrid-cache/internal/blobstore"
)

func TestNew_InvalidEndpoint(t *testing.T) {
	cfg := Config{
		Endpoint:  "invalid-endpoint:port:scheme",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "test-bucket",
	}

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error with invalid endpoint, got nil")
	}
}

func TestNew_ConnectionRefused(t *testing.T) {
	cfg := Config{
		Endpoint:  "localhost:12345",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "test-bucket",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// minio.New does not dial; BucketExists does
	if _, err := New(ctx, cfg); err == nil {
		t.Fatal("expected error connecting to non-existent minio, got nil")
	}
}

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey"}, true},
		{"404", minio.ErrorResponse{StatusCode: http.StatusNotFound}, true},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isNotFound(tc.err); got != tc.want {
				t.Fatalf("isNotFound(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestMetadataCarriesResolutions(t *testing.T) {
	md := metadata(blobstore.ObjectKey{Year: 2020, Name: "g", AzimuthRes: 15, SlopeRes: 5})
	if md["azimuth-res"] != "15" || md["slope-res"] != "5" || md["year"] != "2020" {
		t.Fatalf("metadata = %v", md)
	}
}

func loadConfigFromEnv(t *testing.T) Config {
	t.Helper()
	_ = godotenv.Load("../../../.env.test")

	cfg := Config{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		t.Skip("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY not set")
	}
	return cfg
}

func TestStore_RoundTrip_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := loadConfigFromEnv(t)
	cfg.Bucket = "pvgrid-test-" + time.Now().Format("20060102-150405")

	ctx := context.Background()
	s, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := blobstore.ObjectKey{Year: 2019, Name: "grid_integration", AzimuthRes: 30, SlopeRes: 30}

	ok, err := s.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("Exists before put = %v, %v", ok, err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("Get before put err = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, key, []byte("artifact")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err = s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists after put = %v, %v", ok, err)
	}
	b, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != "artifact" {
		t.Fatalf("Get = %q", b)
	}
}
