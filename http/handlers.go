package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"audioclass/audio"
	"audioclass/db"
	"audioclass/ml"
)

// Service is the classification entrypoint the handlers delegate to.
type Service interface {
	Classify(ctx context.Context, filename string, r io.ReadSeeker, feature string) (*ml.Record, error)
}

var (
	service    Service
	infoSource func() ml.RegistryInfo

	historyQuery = db.QueryHistory
	historyCount = db.CountHistory

	defaultFeature = audio.FeatureConcat
	batchLimit     = 16
	startTime      = time.Now()
)

// SetService injects the classifier.
func SetService(s Service) {
	service = s
}

// SetInfoSource injects the registry metadata provider.
func SetInfoSource(f func() ml.RegistryInfo) {
	infoSource = f
}

// SetDefaultFeature sets the variant reported by the info endpoint.
func SetDefaultFeature(feature string) {
	defaultFeature = feature
}

// SetBatchLimit caps the number of files per batch request.
func SetBatchLimit(n int) {
	if n > 0 {
		batchLimit = n
	}
}

// RegisterHandlers wires the API routes.
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/info", handleInfo)
	mux.HandleFunc("POST /api/predict", handlePredict)
	mux.HandleFunc("POST /api/predict/batch", handlePredictBatch)
	mux.HandleFunc("GET /api/history", handleHistory)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func handleInfo(w http.ResponseWriter, r *http.Request) {
	if infoSource == nil {
		writeError(w, errors.New("info source not configured"))
		return
	}
	info := infoSource()
	respondJSON(w, map[string]interface{}{
		"service":         "audioclass",
		"default_feature": defaultFeature,
		"uptime_seconds":  int64(time.Since(startTime).Seconds()),
		"models":          info,
	})
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		writeError(w, errors.New("service not configured"))
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ml.ErrInvalidInput, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		writeError(w, fmt.Errorf("%w: exactly one file field required", ml.ErrInvalidInput))
		return
	}

	rec, err := classifyUpload(r.Context(), files[0], r.FormValue("feature"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, rec)
}

type batchResult struct {
	Filename string     `json:"filename"`
	OK       bool       `json:"ok"`
	Record   *ml.Record `json:"prediction,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		writeError(w, errors.New("service not configured"))
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ml.ErrInvalidInput, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, fmt.Errorf("%w: no files uploaded", ml.ErrInvalidInput))
		return
	}
	if len(files) > batchLimit {
		writeError(w, fmt.Errorf("%w: at most %d files per batch", ml.ErrInvalidInput, batchLimit))
		return
	}

	feature := r.FormValue("feature")
	results := make([]batchResult, 0, len(files))
	for _, fh := range files {
		// One file's failure never fails the batch.
		rec, err := classifyUpload(r.Context(), fh, feature)
		if err != nil {
			results = append(results, batchResult{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		results = append(results, batchResult{Filename: fh.Filename, OK: true, Record: rec})
	}

	respondJSON(w, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

func handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 500 {
		limit = 500
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	records, err := historyQuery(limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := historyCount()
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"total":   total,
		"limit":   limit,
		"offset":  offset,
		"records": records,
	})
}

// classifyUpload stages the upload on disk, classifies it and cleans up.
func classifyUpload(ctx context.Context, fh *multipart.FileHeader, feature string) (*ml.Record, error) {
	name, path, cleanup, err := saveUpload(fh)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return service.Classify(ctx, name, f, feature)
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ml.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, audio.ErrBadAudio):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ml.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		zap.L().Error("request failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
