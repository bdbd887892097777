package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"clpool/internal/model"
)

// JsonlStorage appends events and results to JSONL files.
type JsonlStorage struct {
	eventsPath  string
	resultsPath string
	mu          sync.Mutex
}

func NewJsonlStorage(eventsPath, resultsPath string) *JsonlStorage {
	return &JsonlStorage{eventsPath: eventsPath, resultsPath: resultsPath}
}

// PutEventBatch appends a batch of events as JSON lines.
func (s *JsonlStorage) PutEventBatch(_ context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]any, len(events))
	for i, event := range events {
		records[i] = event
	}
	return s.appendLines(s.eventsPath, records)
}

// PutResultBatch appends a batch of apply results as JSON lines.
func (s *JsonlStorage) PutResultBatch(_ context.Context, results []model.ApplyResult) error {
	if len(results) == 0 {
		return nil
	}
	records := make([]any, len(results))
	for i, result := range results {
		records[i] = result
	}
	return s.appendLines(s.resultsPath, records)
}

func (s *JsonlStorage) appendLines(path string, records []any) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

// WriteSnapshotFile writes a pool snapshot to path atomically.
func WriteSnapshotFile(path string, snapshot model.PoolSnapshot) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
