package httpserver

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/metrics"
	"github.com/and161185/kizami/internal/model"
)

const maxBody = 64 << 10

type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type hoursRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type hoursResponse struct {
	Hours     float64 `json:"hours"`
	Formatted string  `json:"formatted"`
}

type entryResponse struct {
	ID             int64   `json:"id"`
	ClientID       int64   `json:"client_id"`
	WorkCategoryID int64   `json:"work_category_id"`
	Date           string  `json:"date"`
	StartTime      string  `json:"start_time"`
	EndTime        string  `json:"end_time"`
	Hours          float64 `json:"hours"`
	Comment        *string `json:"comment,omitempty"`
}

type reportPeriod struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

type clientHours struct {
	ClientID   int64   `json:"client_id"`
	ClientName string  `json:"client_name"`
	Hours      float64 `json:"hours"`
}

type hoursReportResponse struct {
	Period     reportPeriod  `json:"period"`
	Summary    []clientHours `json:"summary"`
	TotalHours float64       `json:"total_hours"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.log.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// login accepts JSON or a urlencoded form.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request"})
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request"})
			return
		}
		req.Username, req.Password = r.PostForm.Get("username"), r.PostForm.Get("password")
	}

	tok, err := s.auth.Login(r.Context(), req.Username, req.Password, r.RemoteAddr)
	switch {
	case err == nil:
		s.metrics.Login(metrics.LoginSuccess)
		writeJSON(w, http.StatusOK, loginResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt})
	case errors.Is(err, errs.ErrRateLimited):
		s.metrics.Login(metrics.LoginBlocked)
		s.writeError(w, r, err)
	case errors.Is(err, errs.ErrUnauthorized):
		s.metrics.Login(metrics.LoginFailure)
		s.writeError(w, r, err)
	default:
		s.writeError(w, r, err)
	}
}

func (s *Server) timeOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"options": s.entries.TimeOptions()})
}

func (s *Server) hours(w http.ResponseWriter, r *http.Request) {
	var req hoursRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request"})
		return
	}
	h, err := s.entries.CalculateHours(req.StartTime, req.EndTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hoursResponse{Hours: h, Formatted: strconv.FormatFloat(h, 'f', 2, 64)})
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	var in model.EntryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request"})
		return
	}
	e, err := s.entries.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse{
		ID:             e.ID,
		ClientID:       e.ClientID,
		WorkCategoryID: e.WorkCategoryID,
		Date:           e.Date.Format("2006-01-02"),
		StartTime:      e.StartTime.Format("15:04"),
		EndTime:        e.EndTime.Format("15:04"),
		Hours:          e.Hours,
		Comment:        e.Comment,
	})
}

func (s *Server) hoursReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rep, err := s.reports.SummarizeHours(r.Context(), q.Get("date_from"), q.Get("date_to"))
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
			return
		}
		s.writeError(w, r, err)
		return
	}

	resp := hoursReportResponse{
		Period: reportPeriod{
			DateFrom: rep.From.Format("2006-01-02"),
			DateTo:   rep.To.Format("2006-01-02"),
		},
		Summary:    make([]clientHours, 0, len(rep.Summary)),
		TotalHours: rep.TotalHours,
	}
	for _, c := range rep.Summary {
		resp.Summary = append(resp.Summary, clientHours{ClientID: c.ClientID, ClientName: c.ClientName, Hours: c.Hours})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps domain errors onto status codes. Only unexpected errors are logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *errs.RateLimitError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many login attempts", RetryAfter: rl.RetryAfter})
	case errors.Is(err, errs.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
	case errs.IsUserFacing(err):
		reason := "validation"
		if errors.Is(err, errs.ErrGranularity) {
			reason = "granularity"
		}
		s.metrics.EntryRejected(reason)
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		s.log.Error("request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromCtx(r.Context())),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
	}
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
