package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// ArtifactSource serves finished batch artifacts by task id
type ArtifactSource interface {
	DownloadArtifact(ctx context.Context, taskID string) (io.ReadCloser, string, error)
}

// ArtifactMirror copies batch artifacts from the processing backend into a
// FileStorage, so they outlive the backend's own retention.
type ArtifactMirror struct {
	source ArtifactSource
	store  FileStorage

	mu       sync.RWMutex
	mirrored map[string]string // task id -> object name
}

// NewArtifactMirror creates a mirror from source into store
func NewArtifactMirror(source ArtifactSource, store FileStorage) *ArtifactMirror {
	return &ArtifactMirror{source: source, store: store, mirrored: make(map[string]string)}
}

// ObjectName is the object an artifact of taskID is stored as
func ObjectName(taskID string) string {
	return taskID + ".zip"
}

// Mirror downloads the artifact of taskID and uploads it as <task_id>.zip.
// It returns the stored object's URL.
func (m *ArtifactMirror) Mirror(ctx context.Context, taskID string) (string, error) {
	if taskID == "" {
		return "", fmt.Errorf("mirror artifact: missing task id")
	}

	body, contentType, err := m.source.DownloadArtifact(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("mirror artifact %s: %w", taskID, err)
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/zip"
	}

	name := ObjectName(taskID)
	if err := m.store.Upload(ctx, name, body, -1, contentType); err != nil {
		return "", fmt.Errorf("mirror artifact %s: %w", taskID, err)
	}

	m.mu.Lock()
	m.mirrored[taskID] = name
	m.mu.Unlock()

	url := m.store.URL(name)
	log.Printf("[INFO] [%s] artifact mirrored to %s", taskID, url)
	return url, nil
}

// Mirrored reports whether taskID was mirrored by this process
func (m *ArtifactMirror) Mirrored(taskID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mirrored[taskID]
	return ok
}

// Open returns the mirrored artifact of taskID
func (m *ArtifactMirror) Open(ctx context.Context, taskID string) (io.ReadCloser, error) {
	return m.store.Download(ctx, ObjectName(taskID))
}

// Prune deletes every artifact object last modified more than retention ago,
// including objects mirrored by earlier processes. Objects whose delete fails
// are kept for the next run; the first such error is returned.
func (m *ArtifactMirror) Prune(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	objects, err := m.store.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("prune artifacts: %w", err)
	}

	var firstErr error
	removed := 0
	for _, obj := range objects {
		taskID, ok := strings.CutSuffix(obj.Name, ".zip")
		if !ok || obj.LastModified.After(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, obj.Name); err != nil {
			log.Printf("[WARN] [%s] failed to delete mirrored artifact %s: %v", taskID, obj.Name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("prune artifact %s: %w", taskID, err)
			}
			continue
		}
		m.mu.Lock()
		delete(m.mirrored, taskID)
		m.mu.Unlock()
		removed++
	}
	return removed, firstErr
}

// Len returns the number of artifacts this process knows as mirrored
func (m *ArtifactMirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mirrored)
}
