package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gridfall.gg/internal/persistence/r2s3"
)

type mirrorRuntime struct {
	enabled bool
	mirror  *r2s3.Mirror
}

func buildMirrorRuntime(dataDir string, logger *log.Logger) (*mirrorRuntime, error) {
	enabled := envBool("GF_R2_MIRROR", false)
	if !enabled {
		return &mirrorRuntime{enabled: false}, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("GF_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("GF_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("GF_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("GF_R2_SECRET_ACCESS_KEY"))
	prefix := strings.TrimSpace(os.Getenv("GF_R2_PREFIX"))

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("GF_R2_MIRROR=true but GF_R2_ENDPOINT/GF_R2_BUCKET/GF_R2_ACCESS_KEY_ID/GF_R2_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := r2s3.New(endpoint, bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}

	workers := envInt("GF_R2_UPLOAD_WORKERS", 2)
	queue := envInt("GF_R2_QUEUE", 512)
	mirror := r2s3.NewMirror(client, dataDir, prefix, workers, queue, 50*time.Millisecond, logger)

	return &mirrorRuntime{enabled: true, mirror: mirror}, nil
}

func (r *mirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func (r *mirrorRuntime) Stats() r2s3.Stats {
	if r == nil || r.mirror == nil {
		return r2s3.Stats{}
	}
	return r.mirror.Stats()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
