package payflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileAuditSink is an implementation of AuditSink that writes to a file.
// A file is created per workflow. The file is formatted as newline-delimited
// JSON.
type FileAuditSink struct {
	directory string
}

func NewFileAuditSink(directory string) *FileAuditSink {
	return &FileAuditSink{directory: directory}
}

func (s *FileAuditSink) workflowLogPath(workflowID string) string {
	return filepath.Join(s.directory, fmt.Sprintf("%s.jsonl", workflowID))
}

func (s *FileAuditSink) Record(ctx context.Context, workflowID string, entry AuditLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	filePath := s.workflowLogPath(workflowID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (s *FileAuditSink) History(ctx context.Context, workflowID string) ([]AuditLogEntry, error) {
	data, err := os.ReadFile(s.workflowLogPath(workflowID))
	if err != nil {
		return nil, err
	}
	var entries []AuditLogEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry AuditLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
