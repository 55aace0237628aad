package pipeline

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/rules"
)

// DocumentSource loads and chunks a document by name.
type DocumentSource interface {
	Chunks(ctx context.Context, name string) ([]string, error)
}

// RuleMiner mines rules from the chunks of one standard.
type RuleMiner interface {
	MineDocument(ctx context.Context, chunks []string, standardName string) []rules.ComplianceRule
}

// DocumentReport is the mining outcome for one document.
type DocumentReport struct {
	Document string `json:"document"`
	Rules    int    `json:"rules"`
	Path     string `json:"path,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchReport is the outcome of MineBatch.
type BatchReport struct {
	Documents     []DocumentReport       `json:"documents"`
	Total         int                    `json:"total"`
	CombinedPath  string                 `json:"combined_path,omitempty"`
	CombinedError string                 `json:"combined_error,omitempty"`
	Rules         []rules.ComplianceRule `json:"-"`
}

// OK reports whether at least one rule was mined.
func (r BatchReport) OK() bool { return r.Total > 0 }

// Miner drives rule mining over a batch of Shari'ah standards, one document
// at a time, and persists per-document and combined rule files.
type Miner struct {
	source DocumentSource
	miner  RuleMiner
	logger *zap.Logger
}

func NewMiner(source DocumentSource, miner RuleMiner, logger *zap.Logger) *Miner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Miner{source: source, miner: miner, logger: logger}
}

// StandardName is the display name used in prompts for a document file.
func StandardName(filename string) string {
	return "AAOIFI Shari'ah Standard (" + fileStem(filename) + ")"
}

func fileStem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MineBatch mines every document in filenames, in order, and writes the
// results under outputDir. A document that cannot be loaded is logged and
// skipped. Rule ids are made unique across the batch. A failed save is
// recorded in the report; the document's rules still go to the combined file.
func (m *Miner) MineBatch(ctx context.Context, filenames []string, outputDir string) BatchReport {
	store := rules.NewStore(outputDir)
	var report BatchReport
	var combined []rules.ComplianceRule

	for _, name := range filenames {
		if ctx.Err() != nil {
			m.logger.Warn("rule mining cancelled", zap.Error(ctx.Err()))
			break
		}
		log := m.logger.With(zap.String("document", name))
		doc := DocumentReport{Document: name}

		chunks, err := m.source.Chunks(ctx, name)
		if err != nil {
			log.Warn("could not load document for rule mining; skipping", zap.Error(err))
			doc.Error = err.Error()
			report.Documents = append(report.Documents, doc)
			continue
		}

		mined := m.miner.MineDocument(ctx, chunks, StandardName(name))
		if len(mined) == 0 {
			log.Info("no rules extracted", zap.Int("chunks", len(chunks)))
			report.Documents = append(report.Documents, doc)
			continue
		}

		all := rules.UniqueIDs(append(slices.Clone(combined), mined...))
		mined = all[len(combined):]
		combined = all
		doc.Rules = len(mined)

		path, err := store.SaveDocument(fileStem(name), mined)
		if err != nil {
			log.Error("saving mined rules failed", zap.Error(err))
			doc.Error = err.Error()
		} else {
			doc.Path = path
			log.Info("rules mined", zap.Int("rules", len(mined)), zap.String("path", path))
		}
		report.Documents = append(report.Documents, doc)
	}

	report.Total = len(combined)
	report.Rules = combined
	if report.Total == 0 {
		m.logger.Info("no rules were extracted from any document")
		return report
	}

	path, err := store.SaveCombined(combined)
	if err != nil {
		m.logger.Error("saving combined rules failed", zap.Error(err))
		report.CombinedError = err.Error()
		return report
	}
	report.CombinedPath = path
	m.logger.Info("combined rules saved; review before use", zap.Int("rules", report.Total), zap.String("path", path))
	return report
}
