package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/salesboard/internal/core"
)

// successMessage is what the pages show after a write.
const successMessage = "Du lieu da duoc nhap thanh cong!"

// ImportResponse is the body of a successful import.
type ImportResponse struct {
	Success string             `json:"success"`
	Summary *core.ImportResult `json:"summary"`
}

// EntryResponse is the body of a successful manual entry.
type EntryResponse struct {
	Success string `json:"success"`
}

// handleImport reads the multipart "file" field and imports it in one
// transaction. An optional "charset" field overrides the default charset.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	// Parts beyond 32MB spill to temp files.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, r, errFileTooBig, http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, errBadForm, http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := s.service.Import(withClient(r), header.Filename, file, r.FormValue("charset"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, ImportResponse{Success: successMessage, Summary: result})
}

// handleEntry creates one bill with one line from the entry form.
func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	// The page posts multipart; scripted clients may send urlencoded.
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		respondError(w, r, errBadForm, http.StatusBadRequest)
		return
	}

	entry, err := core.ParseEntryForm(r.PostForm.Get, s.service.Location())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if err := s.service.CreateEntry(r.Context(), entry); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, EntryResponse{Success: successMessage})
}

// handleChartData returns the revenue aggregation as a flat JSON array.
func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ChartData(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []core.ChartRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleImportHistory lists recent imports; ?limit=N caps the count.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := s.service.History(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []core.ImportRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleHealth reports whether the store answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
