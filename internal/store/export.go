package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// ExportRecord is one line of a run history export.
type ExportRecord struct {
	Run     SwarmRun     `json:"run"`
	Tasks   []TaskRecord `json:"tasks"`
	Article *Article     `json:"article,omitempty"`
}

// Export writes every run as zstd-compressed JSON lines, newest first, and
// returns the number of runs written.
func (s *Store) Export(w io.Writer) (int, error) {
	runs, err := s.ListSwarmRuns()
	if err != nil {
		return 0, err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	enc := json.NewEncoder(zw)
	for _, run := range runs {
		rec := ExportRecord{Run: run}
		if rec.Tasks, err = s.ListTasks(run.ID); err != nil {
			return 0, err
		}
		if rec.Article, err = s.GetArticle(run.ID); err != nil {
			return 0, err
		}
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("encode run %s: %w", run.ID, err)
		}
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zstd: %w", err)
	}
	return len(runs), nil
}

// ReadExport decodes an export written by Export, calling fn per record.
func ReadExport(r io.Reader, fn func(ExportRecord) error) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for sc.Scan() {
		var rec ExportRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}
