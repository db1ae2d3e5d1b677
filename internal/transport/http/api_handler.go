package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"friction-gate/internal/app"
	"friction-gate/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	msgMissingSubmit = "Missing comment or article text"
	msgMissingVerify = "Missing data"
	msgInvalidQuizID = "Invalid Quiz ID"
	msgIncorrect     = "Incorrect answers. Please try again."
	msgAccessDenied  = "Access denied"
	msgInternal      = "internal error"
)

// maxBodyBytes caps request bodies; article text is the largest field.
const maxBodyBytes = 1 << 20

// APIHandler serves the JSON endpoints of the gate.
type APIHandler struct {
	service *app.GateService
}

func NewAPIHandler(service *app.GateService) *APIHandler {
	return &APIHandler{service: service}
}

type submitRequest struct {
	Comment     string `json:"comment"`
	ArticleText string `json:"articleText"`
}

type submitResponse struct {
	Status  domain.SubmitStatus `json:"status"`
	Message string              `json:"message,omitempty"`
	Reason  string              `json:"reason,omitempty"`
	QuizID  string              `json:"quizId,omitempty"`
	Quiz    *domain.Quiz        `json:"quiz,omitempty"`
}

type verifyRequest struct {
	QuizID  string `json:"quizId"`
	Answers []int  `json:"answers"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Comment string `json:"comment,omitempty"`
	Message string `json:"message,omitempty"`
}

type commentResponse struct {
	Comment string `json:"comment"`
}

type commentsResponse struct {
	Comments []domain.PublishedComment `json:"comments"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Submit classifies a comment and either posts it or answers with a quiz.
func (h *APIHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgMissingSubmit)
		return
	}

	res, err := h.service.Submit(r.Context(), req.Comment, req.ArticleText)
	if errors.Is(err, domain.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, msgMissingSubmit)
		return
	}
	if err != nil {
		log.Printf("submit failed: %v", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	resp := submitResponse{Status: res.Status, Message: res.Message}
	if res.Status == domain.StatusBlocked {
		resp.Reason = res.Reason
		resp.QuizID = res.QuizID
		resp.Quiz = &res.Quiz
	}
	writeJSON(w, http.StatusOK, resp)
}

// Verify checks quiz answers and releases the withheld comment on success.
func (h *APIHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil || req.QuizID == "" || req.Answers == nil {
		writeError(w, http.StatusBadRequest, msgMissingVerify)
		return
	}

	res, err := h.service.SubmitAnswers(r.Context(), req.QuizID, req.Answers)
	if errors.Is(err, domain.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, msgInvalidQuizID)
		return
	}
	if err != nil {
		log.Printf("verify failed: %v", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	if !res.Success {
		writeJSON(w, http.StatusOK, verifyResponse{Success: false, Message: msgIncorrect})
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Success: true, Comment: res.Comment})
}

// Reveal returns the comment of a solved session.
func (h *APIHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	comment, err := h.service.Reveal(r.Context(), chi.URLParam(r, "quizID"))
	if errors.Is(err, domain.ErrAccessDenied) {
		writeError(w, http.StatusForbidden, msgAccessDenied)
		return
	}
	if err != nil {
		log.Printf("reveal failed: %v", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, commentResponse{Comment: comment})
}

// Comments lists published comments, newest first.
func (h *APIHandler) Comments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, commentsResponse{Comments: h.service.Comments(limit)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
