// File: internal/server/handlers.go
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/qrcode"
	"github.com/smartdevs17/qrcode-generator/internal/scanner"
	"github.com/smartdevs17/qrcode-generator/internal/viewstate"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

const maxJSONBodyBytes = 1 << 20

// Health Handlers

// healthHandler reports liveness and the storage ping
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.repo.GetHealth()

	status, code := "healthy", http.StatusOK
	if !health.Healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":          status,
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         s.version,
		"metrics_enabled": s.config.EnableMetrics,
		"storage":         health,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.repo.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":       time.Now(),
		"storage":         storageStats,
		"settings":        s.settings.Snapshot(),
		"metrics_enabled": s.config.EnableMetrics,
	})
}

// Codec Handlers

type generateRequest struct {
	Content string `json:"content"`
	Size    int    `json:"size,omitempty"`
	Save    *bool  `json:"save,omitempty"`
}

type generateResponse struct {
	QRCode      *models.QRCode `json:"qr_code"`
	ImageBase64 string         `json:"image_base64"`
}

// generateHandler renders content and records it in the history
func (s *HTTPServer) generateHandler(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	save := req.Save == nil || *req.Save

	model := viewstate.NewGenerateModel(s.repo, s.renderer, s.metricsManager)
	model.UpdateInputText(req.Content)

	record, err := model.GenerateWith(r.Context(), viewstate.GenerateOptions{Size: req.Size, Save: save})
	if err != nil {
		if record != nil {
			err = utils.NewAppError(utils.ErrorCode(err), model.Error.Get())
		}
		s.writeError(w, err)
		return
	}

	png := model.Image.Get()
	if strings.EqualFold(r.URL.Query().Get("format"), "png") {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-QR-Type", string(record.Type))
		if record.ID != 0 {
			w.Header().Set("X-QR-Code-ID", strconv.FormatInt(record.ID, 10))
		}
		w.WriteHeader(http.StatusOK)
		w.Write(png)
		return
	}

	status := http.StatusOK
	if save {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, generateResponse{
		QRCode:      record,
		ImageBase64: base64.StdEncoding.EncodeToString(png),
	})
}

// scanHandler decodes an uploaded image and records the scanned content
func (s *HTTPServer) scanHandler(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	start := time.Now()
	content, err := s.decoder.DecodeBytes(data)
	if s.metricsManager != nil {
		reason := ""
		if err != nil {
			reason = qrcode.FailureReason(err)
		}
		s.metricsManager.GetPrometheusMetrics().RecordDecode(scanner.SourceUpload, reason, time.Since(start))
	}
	if err != nil {
		status := http.StatusUnprocessableEntity
		if utils.IsValidation(err) {
			status = http.StatusBadRequest
		}
		s.writeErrorStatus(w, status, err)
		return
	}

	model := viewstate.NewScanModel(s.repo, scanner.SourceUpload, s.metricsManager)
	model.StartScanning()

	record, err := model.OnQRCodeScanned(r.Context(), content)
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrorCode(err), model.Error.Get()))
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"qr_code": record})
}

// readUpload returns the image from a multipart "image" field or the raw body
func (s *HTTPServer) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	var body io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, uploadError(err)
		}
		defer file.Close()
		body = file
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, uploadError(err)
	}
	if len(data) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Image is required")
	}
	return data, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return utils.NewAppError(utils.ErrCodeValidation, "Image is too large", err.Error())
	}
	return utils.NewAppError(utils.ErrCodeValidation, "Failed to read image", err.Error())
}

// History Handlers

// listHistoryHandler lists records. One predicate applies at a time: q, then since, then source.
func (s *HTTPServer) listHistoryHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	records, err := s.repo.GetQRCodes(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"qr_codes": records,
		"count":    len(records),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func parseHistoryFilter(r *http.Request) (models.QRCodeFilter, error) {
	var filter models.QRCodeFilter
	query := r.URL.Query()

	switch {
	case strings.TrimSpace(query.Get("q")) != "":
		filter.Query = query.Get("q")
	case query.Get("since") != "":
		since, err := time.Parse(time.RFC3339, query.Get("since"))
		if err != nil {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid since parameter", err.Error())
		}
		filter.Since = &since
	case query.Get("source") != "":
		switch query.Get("source") {
		case models.SourceGenerated:
			filter = models.GeneratedFilter(true)
		case models.SourceScanned:
			filter = models.GeneratedFilter(false)
		default:
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid source parameter", "expected generated or scanned")
		}
	}

	var err error
	if filter.Limit, err = nonNegativeParam(query.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = nonNegativeParam(query.Get("offset"), "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func nonNegativeParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid "+name+" parameter", "must be a non-negative integer")
	}
	return n, nil
}

// countHistoryHandler returns the history size
func (s *HTTPServer) countHistoryHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.repo.GetQRCodeCount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// getHistoryHandler returns one record
func (s *HTTPServer) getHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	record, err := s.repo.GetQRCode(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// historyImageHandler re-renders the PNG of a record
func (s *HTTPServer) historyImageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	size, err := nonNegativeParam(r.URL.Query().Get("size"), "size")
	if err != nil {
		s.writeError(w, err)
		return
	}

	record, err := s.repo.GetQRCode(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	png, err := s.renderer.Render(r.Context(), record.Content, size)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-QR-Type", string(record.Type))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// deleteHistoryHandler removes one record
func (s *HTTPServer) deleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.repo.DeleteQRCodeByID(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearHistoryHandler removes every record
func (s *HTTPServer) clearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.repo.DeleteAllQRCodes(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid QR code id", mux.Vars(r)["id"])
	}
	return id, nil
}

// Settings Handlers

type settingsUpdate struct {
	DarkTheme *bool `json:"dark_theme,omitempty"`
	AutoCopy  *bool `json:"auto_copy,omitempty"`
}

// getSettingsHandler returns the current preferences
func (s *HTTPServer) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.RefreshHistoryCount(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

// updateSettingsHandler applies a partial preference update
func (s *HTTPServer) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	if req.DarkTheme != nil {
		s.settings.SetDarkTheme(*req.DarkTheme)
	}
	if req.AutoCopy != nil {
		s.settings.SetAutoCopy(*req.AutoCopy)
	}

	s.writeJSON(w, http.StatusOK, s.settings.Snapshot())
}
