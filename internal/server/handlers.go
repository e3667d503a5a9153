package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/prepstand/interviewd/internal/ai"
	"github.com/prepstand/interviewd/internal/interview"
	"github.com/prepstand/interviewd/internal/logger"
)

// maxBodyBytes bounds inbound request bodies.
const maxBodyBytes = 64 << 10

type createSessionRequest struct {
	Role       string `json:"role"`
	Sector     string `json:"sector"`
	Difficulty string `json:"difficulty"`
	FocusArea  string `json:"focusArea"`
	MaxTurns   int    `json:"maxTurns"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	Turn      int    `json:"turn"`
	MaxTurns  int    `json:"maxTurns"`
}

type submitAnswerRequest struct {
	Text string `json:"text"`
}

type assessmentPayload struct {
	Score        float64  `json:"score"`
	Competency   string   `json:"competency,omitempty"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`
}

type submitAnswerResponse struct {
	Assessment        *assessmentPayload `json:"assessment,omitempty"`
	NextQuestion      string             `json:"nextQuestion,omitempty"`
	Report            *interview.Report  `json:"report,omitempty"`
	InterviewComplete bool               `json:"interviewComplete"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	req.Role = strings.TrimSpace(req.Role)
	if req.Role == "" {
		s.writeError(w, r, interview.NewValidationError("role is required"))
		return
	}

	if req.Difficulty == "" {
		req.Difficulty = interview.DifficultyMedium
	}
	if !interview.ValidDifficulty(req.Difficulty) {
		s.writeError(w, r, interview.NewValidationError("difficulty must be easy, medium, or hard"))
		return
	}

	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = s.cfg.DefaultMaxTurns
	}
	if maxTurns > s.cfg.MaxTurnsCeiling {
		s.writeError(w, r, interview.NewValidationError("maxTurns must not exceed %d", s.cfg.MaxTurnsCeiling))
		return
	}

	session := s.registry.Create(interview.Params{
		Role:       req.Role,
		Sector:     req.Sector,
		Difficulty: req.Difficulty,
		FocusArea:  req.FocusArea,
		MaxTurns:   maxTurns,
	})

	question, err := s.orchestrator.Begin(session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.Info("session started",
		zap.String(logger.FieldSession, session.ID()),
		zap.String("role", req.Role),
		zap.String("difficulty", req.Difficulty),
	)

	s.writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.ID(),
		Question:  question,
		Turn:      0,
		MaxTurns:  maxTurns,
	})
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	session, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req submitAnswerRequest
	if !s.decode(w, r, &req) {
		return
	}

	outcome, err := s.orchestrator.SubmitAnswer(session, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := submitAnswerResponse{
		Assessment:        toAssessmentPayload(outcome.Assessment),
		NextQuestion:      outcome.NextQuestion,
		Report:            outcome.Report,
		InterviewComplete: outcome.Completed,
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, session.Snapshot())
}

func toAssessmentPayload(assessment *ai.Assessment) *assessmentPayload {
	if assessment == nil {
		return nil
	}
	return &assessmentPayload{
		Score:        assessment.Score,
		Competency:   assessment.Competency,
		Strengths:    assessment.Strengths,
		Improvements: assessment.Improvements,
		Feedback:     assessment.Feedback,
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		s.writeError(w, r, interview.NewValidationError("malformed request body: %s", err))
		return false
	}

	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", zap.Error(err))
	}
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case interview.IsValidation(err):
		status = http.StatusBadRequest
	case interview.IsNotFound(err):
		status = http.StatusNotFound
	case interview.IsInvariant(err):
		status = http.StatusInternalServerError
	default:
		if kind, ok := ai.KindOf(err); ok {
			switch kind {
			case ai.KindRateLimited:
				status = http.StatusTooManyRequests
			case ai.KindTimeout:
				status = http.StatusGatewayTimeout
			default:
				status = http.StatusBadGateway
			}
		}
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	} else {
		s.log.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
