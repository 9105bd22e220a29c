package services

import (
	"context"
	"fmt"

	"github.com/simulacroapp/simulacro/internal/models"
)

// ExportStore reads everything needed for a session export.
type ExportStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListResponsesBySession(ctx context.Context, sessionID, roundID string) ([]*models.Response, error)
	ListEvaluationsBySession(ctx context.Context, sessionID string) ([]*models.Evaluation, error)
}

// ExportResult is a downloadable file.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders session data as CSV for facilitators.
type ExportService struct {
	store ExportStore
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store}
}

// ExportCSV builds the requested report. kind is "responses" or
// "evaluations"; only facilitators of the session may export.
func (s *ExportService) ExportCSV(ctx context.Context, sessionID, callerID, kind string) (*ExportResult, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("sesión no encontrada")
	}
	if _, err := requireRole(sess, callerID, models.RoleFacilitator); err != nil {
		return nil, err
	}

	nicknames := make(map[string]string, len(sess.Participants))
	for i := range sess.Participants {
		nicknames[sess.Participants[i].UserID] = sess.Participants[i].Nickname
	}

	switch kind {
	case "", "responses":
		rs, err := s.store.ListResponsesBySession(ctx, sessionID, "")
		if err != nil {
			return nil, err
		}
		b, err := ExportResponsesCSV(rs, nicknames)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("respuestas-%s.csv", sessionID),
			ContentType: "text/csv; charset=utf-8",
			Data:        b,
		}, nil
	case "evaluations":
		evals, err := s.store.ListEvaluationsBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		b, err := ExportEvaluationsCSV(evals, nicknames)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("evaluaciones-%s.csv", sessionID),
			ContentType: "text/csv; charset=utf-8",
			Data:        b,
		}, nil
	default:
		return nil, NewInvalidError("tipo de exportación no soportado")
	}
}
