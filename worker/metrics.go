package worker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/poiesic/lorekeeper/core"
)

// MetricsLog appends one JSON object per worker run to a file.
type MetricsLog struct {
	path string
	mu   sync.Mutex
}

// NewMetricsLog creates a log writing to path. The file and its directory
// are created on first append.
func NewMetricsLog(path string) (*MetricsLog, error) {
	if path == "" {
		return nil, ErrMetricsPathRequired
	}
	return &MetricsLog{path: path}, nil
}

// Path returns the log file location.
func (m *MetricsLog) Path() string {
	return m.path
}

// Append writes rec as a single line.
func (m *MetricsLog) Append(rec core.MetricsRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read returns every record in the log, oldest first. A missing file is an
// empty log. Unparseable lines are reported with their line number.
func (m *MetricsLog) Read() ([]core.MetricsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []core.MetricsRecord
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec core.MetricsRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("metrics line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
