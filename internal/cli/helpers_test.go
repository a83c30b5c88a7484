package cli

import (
	"context"
	"errors"
	"time"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driving"
)

// setupTestServices injects stub services into the package vars so
// commands run without bootstrap. The returned cleanup restores the
// previous state.
func setupTestServices() func() {
	oldIngest := ingestService
	oldRetrieval := retrievalService
	oldConversation := conversationService

	ingestService = &stubIngestionService{}
	retrievalService = &stubRetrievalService{result: sampleResult()}
	conversationService = &stubConversationService{}

	return func() {
		ingestService = oldIngest
		retrievalService = oldRetrieval
		conversationService = oldConversation
	}
}

func sampleResult() *domain.RetrievalResult {
	heading := "Embeddings"
	return &domain.RetrievalResult{
		Candidates: []domain.RankedCandidate{
			{
				ChunkID:        "chunk-1",
				DocumentID:     "doc-1",
				Score:          0.92,
				Signals:        map[domain.Signal]float64{domain.SignalSemantic: 0.92},
				Content:        "Dense vectors capture meaning beyond keyword overlap.",
				SectionHeading: &heading,
				PageRange:      &domain.PageRange{First: 3, Last: 4},
			},
			{
				ChunkID:    "chunk-2",
				DocumentID: "doc-2",
				Score:      0.61,
				Signals:    map[domain.Signal]float64{domain.SignalLexical: 0.61},
				Content:    "BM25 remains a strong baseline for exact-term queries.",
			},
		},
		Language: domain.LanguageEnglish,
	}
}

type stubIngestionService struct {
	submitted   []domain.IngestionTask
	resubmitted []string
	submitErr   error
	report      *domain.StatusReport
	statusErr   error
}

var _ driving.IngestionService = (*stubIngestionService)(nil)

func (s *stubIngestionService) Submit(_ context.Context, task domain.IngestionTask) error {
	s.submitted = append(s.submitted, task)
	return s.submitErr
}

func (s *stubIngestionService) Resubmit(_ context.Context, documentID string) error {
	s.resubmitted = append(s.resubmitted, documentID)
	return nil
}

func (s *stubIngestionService) Status(_ context.Context, documentID string) (*domain.StatusReport, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	if s.report != nil {
		return s.report, nil
	}
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.StatusReport{
		DocumentID:       documentID,
		Status:           domain.StatusProcessing,
		ProgressEstimate: 0.5,
		StartedAt:        &started,
	}, nil
}

type stubRetrievalService struct {
	result    *domain.RetrievalResult
	err       error
	lastQuery domain.RetrievalQuery
}

var _ driving.RetrievalService = (*stubRetrievalService)(nil)

func (s *stubRetrievalService) Search(_ context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error) {
	s.lastQuery = query
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubConversationService struct {
	turns     []domain.ConversationTurn
	appendErr error
}

var _ driving.ConversationService = (*stubConversationService)(nil)

func (s *stubConversationService) AppendTurn(_ context.Context, turn *domain.ConversationTurn) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.turns = append(s.turns, *turn)
	return nil
}

func (s *stubConversationService) LoadSession(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	var session []domain.ConversationTurn
	for _, turn := range s.turns {
		if turn.SessionID == sessionID {
			session = append(session, turn)
		}
	}
	return session, nil
}

var errStubService = errors.New("stub service failure")
