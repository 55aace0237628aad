package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoRules is returned when a rules file does not exist.
var ErrNoRules = errors.New("no rules file")

// CombinedFileName is the batch-wide output written next to per-document files.
const CombinedFileName = "generated_ALL_shariah_rules_combined.json"

// DocumentFileName returns the per-document output name for a source stem.
func DocumentFileName(stem string) string {
	return "generated_" + stem + "_rules.json"
}

// LoadFile reads a JSON array of rules from path. Validation templates are
// normalized with NormalizeTemplate.
func LoadFile(path string) ([]ComplianceRule, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoRules, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading rules %s: %w", path, err)
	}
	var rs []ComplianceRule
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decoding rules %s: %w", path, err)
	}
	for i := range rs {
		rs[i].ValidationQueryTemplate = NormalizeTemplate(rs[i].ValidationQueryTemplate)
	}
	return rs, nil
}

// SaveFile writes rs to path as an indented JSON array. The write goes to a
// temporary file first and is renamed into place.
func SaveFile(path string, rs []ComplianceRule) error {
	if rs == nil {
		rs = []ComplianceRule{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".rules-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing rules: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming rules file: %w", err)
	}
	return nil
}

// Store persists mined rules under one output directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// SaveDocument writes the rules mined from one source document and returns
// the file path.
func (s *Store) SaveDocument(stem string, rs []ComplianceRule) (string, error) {
	path := filepath.Join(s.dir, DocumentFileName(stem))
	return path, SaveFile(path, rs)
}

// SaveCombined writes the rules from a whole batch and returns the file path.
func (s *Store) SaveCombined(rs []ComplianceRule) (string, error) {
	path := filepath.Join(s.dir, CombinedFileName)
	return path, SaveFile(path, rs)
}

// LoadCombined reads the batch-wide output file.
func (s *Store) LoadCombined() ([]ComplianceRule, error) {
	return LoadFile(filepath.Join(s.dir, CombinedFileName))
}
