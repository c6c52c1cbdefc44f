package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gabriel-vasile/mimetype"
	"github.com/prepwise/interview-engine/internal/config"
	"github.com/prepwise/interview-engine/internal/domain"
	"github.com/prepwise/interview-engine/internal/usecase"
	"github.com/prepwise/interview-engine/pkg/textx"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Generate   usecase.GenerateService
	Evaluate   usecase.EvaluateService
	Status     usecase.StatusService
	Cleanup    usecase.CleanupService
	Extractor  domain.TextExtractor
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	TikaCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, gen usecase.GenerateService, eval usecase.EvaluateService, status usecase.StatusService, cleanup usecase.CleanupService, extractor domain.TextExtractor, dbCheck, redisCheck, tikaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Generate: gen, Evaluate: eval, Status: status, Cleanup: cleanup, Extractor: extractor, DBCheck: dbCheck, RedisCheck: redisCheck, TikaCheck: tikaCheck}
}

// extractUploadedText performs text extraction based on the uploaded content and filename.
// - For .pdf/.docx: requires an external extractor (Apache Tika) and streams via a temp file.
// - For .txt: returns sanitized text directly.
func extractUploadedText(ctx context.Context, extractor domain.TextExtractor, h *multipart.FileHeader, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(h.Filename))
	if ext == ".pdf" || ext == ".docx" {
		if extractor == nil {
			return "", fmt.Errorf("%w: %s requires extractor", domain.ErrInvalidArgument, strings.TrimPrefix(ext, "."))
		}
		tmp, err := os.CreateTemp("", "resume-*")
		if err != nil {
			return "", err
		}
		defer func() { _ = os.Remove(tmp.Name()); _ = tmp.Close() }()
		if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
			return "", err
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return "", err
		}
		return extractor.ExtractPath(ctx, h.Filename, tmp.Name())
	}
	// Treat as plain text with sanitization
	return textx.SanitizeText(string(data)), nil
}

// allowedExt enforces an allowlist for resume uploads: .txt, .pdf, .docx
func allowedExt(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".txt") || strings.HasSuffix(n, ".pdf") || strings.HasSuffix(n, ".docx")
}

func allowedMIMEFor(m string, filename string) bool {
	m = strings.ToLower(m)
	// For .txt files, accept any text/* (some detectors misclassify rich
	// text) and application/octet-stream: a single control byte is enough to
	// defeat content sniffing, and the text path sanitizes whatever it gets.
	if strings.HasSuffix(strings.ToLower(filename), ".txt") {
		if strings.HasPrefix(m, "text/") || strings.HasPrefix(m, "application/octet-stream") {
			return true
		}
	}
	if strings.HasPrefix(m, "text/plain") { // allow parameters such as charset
		return true
	}
	return m == "application/pdf" || m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// acceptsJSON enforces Accept negotiation: only JSON responses are supported.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
	return false
}

// CreateInterviewHandler starts question generation. It accepts either a
// multipart form (optional resume file plus fields) or a JSON body with
// inline resume text.
func (s *Server) CreateInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		ct := r.Header.Get("Content-Type")
		if strings.Contains(ct, "application/json") {
			s.createFromJSON(w, r)
			return
		}
		if !strings.Contains(ct, "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data or application/json", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			// Map body too large to 413
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB}}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		req := domain.GenerationRequest{
			JobTitle:       strings.TrimSpace(r.FormValue("job_title")),
			JobDescription: strings.TrimSpace(r.FormValue("job_description")),
			TargetCompany:  strings.TrimSpace(r.FormValue("target_company")),
			Difficulty:     domain.Difficulty(strings.ToUpper(strings.TrimSpace(r.FormValue("difficulty")))),
			Language:       domain.Language(strings.ToUpper(strings.TrimSpace(r.FormValue("language")))),
		}
		if v := strings.TrimSpace(r.FormValue("years_of_experience")); v != "" {
			years, err := strconv.Atoi(v)
			if err != nil || years < 0 {
				writeError(w, r, fmt.Errorf("%w: years_of_experience must be a non-negative integer", domain.ErrInvalidArgument), map[string]string{"field": "years_of_experience"})
				return
			}
			req.ExperienceYears = years
		}
		for _, sk := range strings.Split(r.FormValue("skills"), ",") {
			if sk = strings.TrimSpace(sk); sk != "" {
				req.Skills = append(req.Skills, sk)
			}
		}

		resumeFile, resumeHeader, err := r.FormFile("resume")
		switch err {
		case nil:
			defer func() { _ = resumeFile.Close() }()
			data, rerr := io.ReadAll(resumeFile)
			if rerr != nil {
				writeError(w, r, fmt.Errorf("%w: resume read: %v", domain.ErrInvalidArgument, rerr), nil)
				return
			}
			if !allowedExt(resumeHeader.Filename) {
				writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "unsupported media type for resume (extension)", Details: map[string]any{"filename": resumeHeader.Filename}}})
				return
			}
			mt := mimetype.Detect(data)
			if !allowedMIMEFor(mt.String(), resumeHeader.Filename) {
				writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "unsupported media type for resume (content)", Details: map[string]any{"mime": mt.String(), "filename": resumeHeader.Filename}}})
				return
			}
			text, xerr := extractUploadedText(r.Context(), s.Extractor, resumeHeader, data)
			if xerr != nil {
				writeError(w, r, fmt.Errorf("%w: resume extract: %v", domain.ErrInvalidArgument, xerr), nil)
				return
			}
			req.ResumeText = text
		case http.ErrMissingFile:
			// resume is optional
		default:
			writeError(w, r, fmt.Errorf("%w: resume: %v", domain.ErrInvalidArgument, err), map[string]string{"field": "resume"})
			return
		}

		id, err := s.Generate.Submit(r.Context(), req)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "state": string(domain.JobProcessing)})
	}
}

// createFromJSON handles the JSON variant of interview creation: resume text
// arrives inline instead of as a file upload.
func (s *Server) createFromJSON(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	var req struct {
		JobTitle        string   `json:"job_title" validate:"required,max=300"`
		JobDescription  string   `json:"job_description" validate:"max=10000"`
		ResumeText      string   `json:"resume_text" validate:"max=50000"`
		Difficulty      string   `json:"difficulty"`
		ExperienceYears int      `json:"years_of_experience" validate:"min=0"`
		Language        string   `json:"language"`
		Skills          []string `json:"skills" validate:"max=20,dive,max=100"`
		TargetCompany   string   `json:"target_company" validate:"max=300"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return
	}
	if err := getValidator().Struct(req); err != nil {
		verrs := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return
	}
	skills := make([]string, 0, len(req.Skills))
	for _, sk := range req.Skills {
		if sk = strings.TrimSpace(sk); sk != "" {
			skills = append(skills, sk)
		}
	}
	id, err := s.Generate.Submit(r.Context(), domain.GenerationRequest{
		JobTitle:        strings.TrimSpace(req.JobTitle),
		JobDescription:  strings.TrimSpace(req.JobDescription),
		ResumeText:      textx.SanitizeText(req.ResumeText),
		TargetCompany:   strings.TrimSpace(req.TargetCompany),
		Difficulty:      domain.Difficulty(strings.ToUpper(strings.TrimSpace(req.Difficulty))),
		Language:        domain.Language(strings.ToUpper(strings.TrimSpace(req.Language))),
		ExperienceYears: req.ExperienceYears,
		Skills:          skills,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "state": string(domain.JobProcessing)})
}

// EvaluateHandler accepts candidate answers for a completed interview and
// starts an evaluation job.
func (s *Server) EvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		// Cap body size to prevent abuse
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req struct {
			Answers []struct {
				QuestionID int    `json:"question_id" validate:"required,min=1"`
				Answer     string `json:"answer" validate:"max=20000"`
			} `json:"answers" validate:"required,min=1,dive"`
			DurationSeconds int    `json:"duration_seconds" validate:"min=0"`
			Difficulty      string `json:"difficulty"`
			Language        string `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		answers := make([]usecase.Answer, 0, len(req.Answers))
		for _, a := range req.Answers {
			answers = append(answers, usecase.Answer{QuestionID: a.QuestionID, Text: a.Answer})
		}
		params := domain.EvaluationParams{
			Difficulty:  domain.Difficulty(strings.ToUpper(strings.TrimSpace(req.Difficulty))),
			Language:    domain.Language(strings.ToUpper(strings.TrimSpace(req.Language))),
			DurationSec: req.DurationSeconds,
		}
		evalID, err := s.Evaluate.Submit(r.Context(), id, answers, params)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": evalID, "state": string(domain.JobProcessing)})
	}
}

// StatusHandler returns job state plus questions or evaluation results when completed.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		status, body, etag, err := s.Status.Fetch(r.Context(), id, r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", etag)
		if status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, body)
	}
}

// DeleteHandler removes a job and its stored artifacts.
func (s *Server) DeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Cleanup.Delete(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthzHandler reports process liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler returns a readiness handler that probes the job store and Tika.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		run := func(name string, probe func(context.Context) error) {
			if probe == nil {
				return
			}
			if err := probe(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
				return
			}
			checks = append(checks, check{Name: name, OK: true})
		}
		run("db", s.DBCheck)
		run("redis", s.RedisCheck)
		run("tika", s.TikaCheck)
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
