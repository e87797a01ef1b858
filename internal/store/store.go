package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quant-optimizer/internal/infrastructure"
	"quant-optimizer/internal/model"

	"go.uber.org/zap"
)

// NotFoundError reports a run id with no stored record.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("run %q not found", e.RunID)
}

// InvalidArgumentError reports query/compare misuse. Surfaced immediately,
// never retried.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Reason
}

// Store persists RunRecords under a base directory:
//
//	history/runs.jsonl   append-only index, one RunIndexEntry per line
//	details/<run_id>.json  full RunRecord
//
// Detail files are written to a temp file and renamed into place before the
// index entry is appended, so the index never references a missing detail
// record. The reverse can happen after a crash (orphan detail, no index
// entry) and is cleaned up by Reconcile.
type Store struct {
	baseDir    string
	historyDir string
	detailsDir string
	indexFile  string

	// Serializes index writes. Detail writes for different run ids proceed
	// in parallel, they touch disjoint files.
	mu sync.Mutex

	logger *zap.Logger
}

func New(baseDir string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		baseDir:    baseDir,
		historyDir: filepath.Join(baseDir, "history"),
		detailsDir: filepath.Join(baseDir, "details"),
		logger:     logger,
	}
	s.indexFile = filepath.Join(s.historyDir, "runs.jsonl")

	for _, dir := range []string{s.historyDir, s.detailsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	logger.Info("results store ready", zap.String("dir", baseDir))
	return s, nil
}

func (s *Store) detailPath(runID string) string {
	return filepath.Join(s.detailsDir, runID+".json")
}

// Save assigns the record its run id, writes the detail record atomically
// and then appends the index entry. The id is a pure function of (strategy,
// kind, timestamp, disambiguator); a collision bumps the disambiguator until
// an unclaimed id is found, before anything is persisted.
func (s *Store) Save(rec *model.RunRecord) (string, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var placeholder *os.File
	for n := 0; ; n++ {
		id := model.FormatRunID(rec.StrategyID, rec.SearchKind, rec.CreatedAt, n)
		f, err := os.OpenFile(s.detailPath(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			rec.RunID = id
			placeholder = f
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to claim run id: %w", err)
		}
	}
	placeholder.Close()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		os.Remove(s.detailPath(rec.RunID))
		return "", fmt.Errorf("failed to marshal run record: %w", err)
	}

	tmp, err := os.CreateTemp(s.detailsDir, rec.RunID+".tmp-")
	if err != nil {
		os.Remove(s.detailPath(rec.RunID))
		return "", fmt.Errorf("failed to create temp detail file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		os.Remove(s.detailPath(rec.RunID))
		return "", fmt.Errorf("failed to write detail record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		os.Remove(s.detailPath(rec.RunID))
		return "", fmt.Errorf("failed to close temp detail file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.detailPath(rec.RunID)); err != nil {
		os.Remove(tmp.Name())
		os.Remove(s.detailPath(rec.RunID))
		return "", fmt.Errorf("failed to commit detail record: %w", err)
	}

	if err := s.appendIndex(rec.IndexEntry()); err != nil {
		return "", err
	}

	infrastructure.RunsStored.Inc()
	s.logger.Info("run saved",
		zap.String("run_id", rec.RunID),
		zap.String("kind", rec.SearchKind),
	)
	return rec.RunID, nil
}

func (s *Store) appendIndex(entry model.RunIndexEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal index entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.indexFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append index entry: %w", err)
	}
	return nil
}

func (s *Store) readIndex() ([]model.RunIndexEntry, error) {
	f, err := os.Open(s.indexFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	var entries []model.RunIndexEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry model.RunIndexEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			s.logger.Warn("skipping corrupt index line", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return entries, nil
}

// Get loads the full detail record for a run id.
func (s *Store) Get(runID string) (*model.RunRecord, error) {
	data, err := os.ReadFile(s.detailPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to read detail record: %w", err)
	}

	var rec model.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run %q: %w", runID, err)
	}
	return &rec, nil
}

// Delete removes the index entry and the detail record together. The index
// entry goes first: a crash in between leaves an orphan detail record for
// Reconcile, never a dangling index entry. Fails with NotFoundError when
// either side is already missing; delete is deliberately not idempotent.
func (s *Store) Delete(runID string) error {
	if _, err := os.Stat(s.detailPath(runID)); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndex()
	if err != nil {
		return err
	}

	kept := make([]model.RunIndexEntry, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.RunID == runID {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return &NotFoundError{RunID: runID}
	}

	if err := s.rewriteIndex(kept); err != nil {
		return err
	}
	if err := os.Remove(s.detailPath(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove detail record: %w", err)
	}

	infrastructure.RunsStored.Dec()
	s.logger.Info("run deleted", zap.String("run_id", runID))
	return nil
}

// rewriteIndex replaces the index atomically. Caller holds s.mu.
func (s *Store) rewriteIndex(entries []model.RunIndexEntry) error {
	tmp, err := os.CreateTemp(s.historyDir, "runs.tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}

	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("failed to marshal index entry: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp index: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.indexFile); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

// Reconcile removes orphan detail records that have no index entry, the
// recoverable leftover of a crash between the detail write and the index
// append. Returns the number of orphans removed.
func (s *Store) Reconcile() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndex()
	if err != nil {
		return 0, err
	}
	indexed := make(map[string]bool, len(entries))
	for _, e := range entries {
		indexed[e.RunID] = true
	}

	files, err := os.ReadDir(s.detailsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list detail records: %w", err)
	}

	removed := 0
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".json") {
			// Stray temp file from an interrupted write.
			os.Remove(filepath.Join(s.detailsDir, name))
			continue
		}
		runID := strings.TrimSuffix(name, ".json")
		if indexed[runID] {
			continue
		}
		if err := os.Remove(filepath.Join(s.detailsDir, name)); err != nil {
			s.logger.Warn("failed to remove orphan detail record",
				zap.String("run_id", runID), zap.Error(err))
			continue
		}
		removed++
		s.logger.Info("removed orphan detail record", zap.String("run_id", runID))
	}
	return removed, nil
}
