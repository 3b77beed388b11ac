package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/levifans/backend/internal/models"
	"github.com/levifans/backend/internal/videos"
)

// DefaultSnapshotKey is where exports land unless a key is given.
const DefaultSnapshotKey = "catalog/snapshot.json"

// Snapshot is the exported view of the catalog.
type Snapshot struct {
	GeneratedAt time.Time            `json:"generatedAt"`
	Latest      videos.Categories    `json:"latest"`
	Featured    []models.ContentItem `json:"featured"`
}

// Saver stores an object and reports where it can be fetched from.
type Saver interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// ExportSnapshot encodes snap as JSON and hands it to saver under key.
func ExportSnapshot(ctx context.Context, saver Saver, key string, snap Snapshot) (string, error) {
	if key == "" {
		key = DefaultSnapshotKey
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	location, err := saver.Save(ctx, key, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("export snapshot: %w", err)
	}
	return location, nil
}
