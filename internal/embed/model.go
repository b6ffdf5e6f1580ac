package embed

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/madzarm/ccsearch/internal/config"
)

// DefaultAcquireTimeout bounds the one-time model download.
const DefaultAcquireTimeout = 60 * time.Second

// modelFiles are the artifacts the embedder needs on disk.
var modelFiles = []struct {
	name string
	url  string
}{
	{"model.onnx", "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/onnx/model.onnx"},
	{"vocab.txt", "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/vocab.txt"},
	{"config.json", "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/config.json"},
}

var (
	loadOnce   sync.Once
	loadResult Capability
)

// Load acquires the model if needed and constructs the embedder,
// returning the resulting capability. It runs at most once per
// process: later calls return the first outcome, so a failed
// acquisition does not retry within the same run.
func Load(ctx context.Context, modelsDir string, timeout time.Duration) Capability {
	loadOnce.Do(func() {
		loadResult = load(ctx, modelsDir, timeout)
	})
	return loadResult
}

func load(ctx context.Context, modelsDir string, timeout time.Duration) Capability {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	dir := filepath.Join(modelsDir, config.ModelName)
	if !IsModelDownloaded(dir) {
		dlCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := downloadModel(dlCtx, dir); err != nil {
			log.Printf("embedding model unavailable: %v", err)
			return Unavailable(fmt.Sprintf("model download failed: %v", err))
		}
	}

	m, err := NewMiniLM(dir)
	if err != nil {
		log.Printf("embedding model failed to load: %v", err)
		return Unavailable(fmt.Sprintf("model load failed: %v", err))
	}
	return Available(m)
}

// IsModelDownloaded reports whether every artifact is present.
func IsModelDownloaded(modelDir string) bool {
	for _, f := range modelFiles {
		if _, err := os.Stat(filepath.Join(modelDir, f.name)); err != nil {
			return false
		}
	}
	return true
}

// downloadModel fetches the artifacts into the model directory,
// writing each through a temp file so a partial download never looks
// complete.
func downloadModel(ctx context.Context, modelDir string) error {
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model dir: %w", err)
	}

	client := &http.Client{}
	for _, f := range modelFiles {
		dest := filepath.Join(modelDir, f.name)
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := downloadFile(ctx, client, f.url, dest); err != nil {
			return fmt.Errorf("failed to download %s: %w", f.name, err)
		}
	}
	return nil
}

func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
