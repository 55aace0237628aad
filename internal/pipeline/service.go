package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/agents"
	"github.com/kalambet/asave/internal/llm"
	"github.com/kalambet/asave/internal/retrieval"
	"github.com/kalambet/asave/internal/storage"
)

// Session is the analysis context bound to one FAS and, optionally, one SS
// document. It is immutable once built; loading other standards builds a new
// Session.
type Session struct {
	FASDocID  string    `json:"fas_document"`
	SSDocID   string    `json:"ss_document,omitempty"`
	SSLoaded  bool      `json:"ss_loaded"`
	Rules     int       `json:"rules"`
	CreatedAt time.Time `json:"created_at"`

	FAS agents.Searcher `json:"-"`
	SS  agents.Searcher `json:"-"`

	Extraction *agents.ExtractionAgent `json:"-"`
	Suggestion *agents.SuggestionAgent `json:"-"`
	Validation *agents.ValidationAgent `json:"-"`
}

// DocumentIndexer indexes documents on demand and loads their chunks.
// *ingest.Indexer satisfies it.
type DocumentIndexer interface {
	DocumentSource
	Index(ctx context.Context, docID, path string) (int, error)
}

// KindRecorder tags a document with the role it plays in a session.
// *storage.Store satisfies it.
type KindRecorder interface {
	SetDocumentKind(id, kind string) error
}

// Service is the entry point for analysis and mining. It owns the current
// Session and swaps it atomically when other standards are loaded.
type Service struct {
	backend   agents.Backend
	retriever *retrieval.Retriever
	indexer   DocumentIndexer
	kinds     KindRecorder
	rulesPath string

	orchestrator *Orchestrator
	miner        *Miner
	extraction   *agents.ExtractionAgent
	suggestion   *agents.SuggestionAgent
	logger       *zap.Logger

	mu      sync.RWMutex
	session *Session
}

// NewService wires a Service. rulesPath names the explicit rules file
// loaded by every new session; it may be empty.
func NewService(backend agents.Backend, retriever *retrieval.Retriever, indexer DocumentIndexer, rulesPath string, orch *Orchestrator) *Service {
	logger := backend.Logger
	if logger == nil {
		logger = zap.NewNop()
		backend.Logger = logger
	}
	if orch == nil {
		orch = NewOrchestrator(0, nil, logger)
	}
	return &Service{
		backend:      backend,
		retriever:    retriever,
		indexer:      indexer,
		rulesPath:    rulesPath,
		orchestrator: orch,
		miner:        NewMiner(indexer, agents.NewRuleMinerAgent(backend), logger),
		extraction:   agents.NewExtractionAgent(backend, nil),
		suggestion:   agents.NewSuggestionAgent(backend),
		logger:       logger,
	}
}

// WithKindRecorder makes InitializeComponents tag loaded documents as FAS
// or SS.
func (s *Service) WithKindRecorder(k KindRecorder) *Service {
	s.kinds = k
	return s
}

// Session returns the current session or nil.
func (s *Service) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// InitializeComponents binds a new session to fasDocID and ssDocID, indexing
// either document first if it has no vectors yet. It returns false if the
// FAS document cannot be made searchable. An SS document that fails is
// logged and the session proceeds without SS context.
func (s *Service) InitializeComponents(ctx context.Context, fasDocID, ssDocID string) bool {
	if fasDocID == "" {
		s.logger.Error("no FAS document given")
		return false
	}
	if err := s.ensureIndexed(ctx, fasDocID); err != nil {
		s.logger.Error("FAS document could not be loaded", zap.String("document", fasDocID), zap.Error(err))
		return false
	}

	sess := &Session{
		FASDocID:  fasDocID,
		SSDocID:   ssDocID,
		CreatedAt: time.Now().UTC(),
		FAS:       s.retriever.Scope(fasDocID),
	}
	if ssDocID != "" {
		if err := s.ensureIndexed(ctx, ssDocID); err != nil {
			s.logger.Warn("SS document could not be loaded; compliance checks will lack SS context",
				zap.String("document", ssDocID), zap.Error(err))
		} else {
			sess.SS = s.retriever.Scope(ssDocID)
			sess.SSLoaded = true
		}
	}

	s.tagKind(fasDocID, storage.KindFAS)
	if sess.SSLoaded {
		s.tagKind(ssDocID, storage.KindSS)
	}

	ruleSet := agents.LoadRules(s.rulesPath, s.logger)
	sess.Rules = len(ruleSet)
	sess.Extraction = agents.NewExtractionAgent(s.backend, sess.FAS)
	sess.Suggestion = s.suggestion
	sess.Validation = agents.NewValidationAgent(s.backend, ruleSet, sess.SS, sess.FAS)

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	s.logger.Info("session initialized",
		zap.String("fas", fasDocID),
		zap.String("ss", ssDocID),
		zap.Bool("ss_loaded", sess.SSLoaded),
		zap.Int("rules", sess.Rules),
	)
	return true
}

func (s *Service) tagKind(docID, kind string) {
	if s.kinds == nil {
		return
	}
	if err := s.kinds.SetDocumentKind(docID, kind); err != nil {
		s.logger.Debug("could not tag document kind", zap.String("document", docID), zap.Error(err))
	}
}

func (s *Service) ensureIndexed(ctx context.Context, docID string) error {
	ok, err := s.retriever.Indexed(ctx, docID)
	if err != nil {
		return fmt.Errorf("checking index of %s: %w", docID, err)
	}
	if ok {
		return nil
	}
	n, err := s.indexer.Index(ctx, docID, "")
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("no text extracted from " + docID)
	}
	return nil
}

// RunOrchestration analyses sectionText with the current session.
func (s *Service) RunOrchestration(ctx context.Context, sectionText, fasLabel string) Result {
	return s.orchestrator.Run(ctx, s.Session(), sectionText, fasLabel)
}

// MineRules mines the given SS documents into outputDir.
func (s *Service) MineRules(ctx context.Context, ssDocIDs []string, outputDir string) BatchReport {
	return s.miner.MineBatch(ctx, ssDocIDs, outputDir)
}

// RunRuleMining is MineRules reporting only whether any rule was mined.
func (s *Service) RunRuleMining(ctx context.Context, ssDocIDs []string, outputDir string) bool {
	return s.MineRules(ctx, ssDocIDs, outputDir).OK()
}

// ExtractDefinitions extracts defined terms from text. The raw result is
// returned alongside the parsed terms; a parse error leaves defs nil.
func (s *Service) ExtractDefinitions(ctx context.Context, text string) ([]agents.Definition, llm.Result, error) {
	res := s.extraction.ExtractDefinitions(ctx, text)
	if res.Failed {
		return nil, res, res.Err
	}
	defs, err := agents.ParseDefinitions(res.Text)
	if err != nil {
		s.logger.Warn("definitions output was not valid JSON", zap.Error(err))
		return nil, res, err
	}
	return defs, res, nil
}

// IdentifyKeyClauses answers a topic question from the session's FAS.
func (s *Service) IdentifyKeyClauses(ctx context.Context, topic, standardName string) agents.ClauseAnswer {
	sess := s.Session()
	if sess == nil {
		return agents.ClauseAnswer{Result: llm.Failure(agents.ErrNotInitialized)}
	}
	return sess.Extraction.IdentifyKeyClauses(ctx, topic, llm.OrDefault(standardName, sess.FASDocID))
}

// Enhancement is a proposed clause for a gap in a standard.
type Enhancement struct {
	Gap        string          `json:"gap"`
	Standard   string          `json:"standard"`
	Raw        string          `json:"raw"`
	Failed     bool            `json:"failed,omitempty"`
	Proposal   agents.Sections `json:"proposal"`
	FASContext string          `json:"fas_context,omitempty"`
	SSContext  string          `json:"ss_context,omitempty"`
}

// ProposeEnhancement drafts a clause closing gap in standardName, grounded
// in the session's documents when a session exists.
func (s *Service) ProposeEnhancement(ctx context.Context, gap, standardName, externalContext string) Enhancement {
	out := Enhancement{Gap: gap, Standard: standardName}
	req := agents.GapRequest{GapDescription: gap, ExternalContext: externalContext}
	if sess := s.Session(); sess != nil {
		out.Standard = llm.OrDefault(standardName, sess.FASDocID)
		out.FASContext, out.SSContext = s.orchestrator.retrieveContext(ctx, sess, gap, s.logger)
		req.FASContext, req.SSContext = out.FASContext, out.SSContext
	}
	req.StandardName = out.Standard

	res := s.suggestion.ProposeEnhancementForGap(ctx, req)
	out.Raw, out.Failed = res.Text, res.Failed
	if !res.Failed {
		out.Proposal = agents.EnhancementGrammar(out.Standard).Parse(res.Text)
	}
	return out
}

// Search returns the k excerpts of docID most relevant to query.
func (s *Service) Search(ctx context.Context, docID, query string, k int) ([]retrieval.Snippet, error) {
	return s.retriever.Search(ctx, docID, query, k)
}
