package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/prepstand/interviewd/internal/ai"
	"github.com/prepstand/interviewd/internal/logger"
	"github.com/prepstand/interviewd/internal/prompt"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Interviewer implements ai.Interviewer on top of a Gemini content generator.
type Interviewer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

const defaultMaxLogLength = 200

// NewInterviewer wires a content generator into the interviewer contract.
func NewInterviewer(generator contentGenerator, log *zap.Logger, maxLogLength int) *Interviewer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	if generator != nil {
		log = logger.WithCommonFields(log, "gemini", generator.Model())
	}

	return &Interviewer{
		generator: generator,
		logger:    log,
		maxLogLen: maxLogLength,
	}
}

// NextQuestion asks the provider for the session's next question.
func (i *Interviewer) NextQuestion(ctx context.Context, session *ai.SessionContext) (*ai.Question, error) {
	if session == nil {
		return nil, errors.New("session context is required")
	}

	system, user := prompt.NextQuestion(session)

	raw, err := i.generate(ctx, session, "next_question", system, user)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if text == "" {
		return nil, ai.NewError(ai.KindInvalidResponse, errors.New("provider returned an empty question"))
	}

	return &ai.Question{Text: text, Raw: raw}, nil
}

// ScoreAnswer asks the provider to assess the active turn's answer.
func (i *Interviewer) ScoreAnswer(ctx context.Context, session *ai.SessionContext) (*ai.Assessment, error) {
	if session == nil {
		return nil, errors.New("session context is required")
	}
	if strings.TrimSpace(session.Question) == "" || strings.TrimSpace(session.Answer) == "" {
		return nil, errors.New("question and answer are required to score")
	}

	system, user := prompt.EvaluateAnswer(session)

	raw, err := i.generate(ctx, session, "score_answer", system, user)
	if err != nil {
		return nil, err
	}

	assessment, err := parseAssessment(raw)
	if err != nil {
		return nil, ai.NewError(ai.KindInvalidResponse, err)
	}

	assessment.Raw = raw
	return assessment, nil
}

// Summarize asks the provider for the closing narrative over the scored turns.
func (i *Interviewer) Summarize(ctx context.Context, session *ai.SessionContext) (string, error) {
	if session == nil {
		return "", errors.New("session context is required")
	}

	system, user := prompt.FinalSummary(session)

	raw, err := i.generate(ctx, session, "summarize", system, user)
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", ai.NewError(ai.KindInvalidResponse, errors.New("provider returned an empty summary"))
	}

	return summary, nil
}

func (i *Interviewer) generate(ctx context.Context, session *ai.SessionContext, kind, system, user string) (string, error) {
	i.logger.Debug("gemini generate content request",
		zap.String(logger.FieldSession, session.SessionID),
		zap.String("request_kind", kind),
		zap.Int("prompt_length", utf8.RuneCountInString(user)),
		zap.String("prompt_preview", logger.TruncateForLog(user, i.maxLogLen)),
	)

	raw, err := i.generator.GenerateContent(ctx, system, user)
	if err != nil {
		return "", err
	}

	i.logger.Debug("gemini generate content response",
		zap.String(logger.FieldSession, session.SessionID),
		zap.String("request_kind", kind),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, i.maxLogLen)),
	)

	return raw, nil
}

func parseAssessment(raw string) (*ai.Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse assessment response: %w", err)
	}

	var payload struct {
		Score        float64  `mapstructure:"score"`
		Competency   string   `mapstructure:"competency"`
		Strengths    []string `mapstructure:"strengths"`
		Improvements []string `mapstructure:"improvements"`
		Feedback     string   `mapstructure:"feedback"`
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &payload,
	})
	if err != nil {
		return nil, fmt.Errorf("build assessment decoder: %w", err)
	}

	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode assessment payload: %w", err)
	}

	score := payload.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &ai.Assessment{
		Score:        score,
		Competency:   strings.ToLower(strings.TrimSpace(payload.Competency)),
		Strengths:    trimAll(payload.Strengths),
		Improvements: trimAll(payload.Improvements),
		Feedback:     strings.TrimSpace(payload.Feedback),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func trimAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}
