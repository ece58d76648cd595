package sqlite

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/photofactory/internal/atomicfile"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// JSONL export file names, one per exported table.
const (
	jobsJSONL     = "jobs.jsonl"
	photosJSONL   = "photos.jsonl"
	usersJSONL    = "users.jsonl"
	settingsJSONL = "settings.jsonl"
)

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped; a missing file yields no
// records.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	// Photo lines carry base64 image bytes.
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes one JSON value per line.
func writeJSONL[T any](path string, records []T) error {
	return atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
		}
		return bw.Flush()
	})
}

func decodeJSONL[T any](path string) ([]*T, error) {
	raws, err := readJSONL(path)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ExportJSONL writes jobs, photos, users and settings to one JSONL file each
// in dir.
func (b *Backend) ExportJSONL(ctx context.Context, dir string) error {
	snap, err := b.Export(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	if err := writeJSONL(filepath.Join(dir, jobsJSONL), snap.Jobs); err != nil {
		return fmt.Errorf("writing %s: %w", jobsJSONL, err)
	}
	if err := writeJSONL(filepath.Join(dir, photosJSONL), snap.Photos); err != nil {
		return fmt.Errorf("writing %s: %w", photosJSONL, err)
	}
	if err := writeJSONL(filepath.Join(dir, usersJSONL), snap.Users); err != nil {
		return fmt.Errorf("writing %s: %w", usersJSONL, err)
	}
	if err := writeJSONL(filepath.Join(dir, settingsJSONL), snap.Settings); err != nil {
		return fmt.Errorf("writing %s: %w", settingsJSONL, err)
	}
	return nil
}

// ImportJSONL replaces the store's contents with the JSONL files in dir.
// Missing files import as empty tables; malformed lines are skipped.
func (b *Backend) ImportJSONL(ctx context.Context, dir string) error {
	snap := &types.Snapshot{Version: types.SnapshotVersion}
	var err error
	if snap.Jobs, err = decodeJSONL[types.Job](filepath.Join(dir, jobsJSONL)); err != nil {
		return err
	}
	if snap.Photos, err = decodeJSONL[types.Photo](filepath.Join(dir, photosJSONL)); err != nil {
		return err
	}
	if snap.Users, err = decodeJSONL[types.User](filepath.Join(dir, usersJSONL)); err != nil {
		return err
	}
	if snap.Settings, err = decodeJSONL[types.Setting](filepath.Join(dir, settingsJSONL)); err != nil {
		return err
	}
	return b.Import(ctx, snap)
}
