package api

import (
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/kdimtricp/objdetect/internal/detector"
	"github.com/kdimtricp/objdetect/internal/encoding"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

type upload struct {
	data       []byte
	filename   string
	confidence float64
}

func (app *App) DetectHandler(w http.ResponseWriter, r *http.Request) {
	up, ok := app.readUpload(w, r)
	if !ok {
		return
	}

	out, err := app.Service.Detect(r.Context(), up.data, up.filename, up.confidence)
	if err != nil {
		app.writeDetectError(w, r, err)
		return
	}

	encoding.WriteJSON(w, http.StatusOK, encoding.Record(out.Record))
}

func (app *App) DetectAnnotatedHandler(w http.ResponseWriter, r *http.Request) {
	up, ok := app.readUpload(w, r)
	if !ok {
		return
	}

	img, rec, err := app.Service.DetectAnnotated(r.Context(), up.data, up.filename, up.confidence)
	if err != nil {
		app.writeDetectError(w, r, err)
		return
	}

	encoding.WriteAnnotated(w, img, rec)
}

// readUpload validates a detect request in a fixed order: upload and
// content type, then confidence, then engine readiness.
func (app *App) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			encoding.WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large", "File too large")
			return nil, false
		}
		encoding.WriteError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart upload")
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		encoding.WriteError(w, http.StatusBadRequest, "invalid_request", "Missing file field")
		return nil, false
	}
	defer file.Close()

	if !allowedContentType(header.Header.Get("Content-Type")) {
		encoding.WriteError(w, http.StatusBadRequest, "invalid_content_type", "File must be an image (JPEG or PNG)")
		return nil, false
	}

	conf, ok := parseConfidence(r.URL.Query().Get("confidence"))
	if !ok {
		encoding.WriteError(w, http.StatusUnprocessableEntity, "invalid_confidence", "confidence must be a number between 0 and 1")
		return nil, false
	}

	if !app.Detector.Ready() {
		writeNotReady(w)
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		encoding.WriteError(w, http.StatusBadRequest, "invalid_request", "Failed to read file")
		return nil, false
	}

	return &upload{data: data, filename: header.Filename, confidence: conf}, true
}

func (app *App) writeDetectError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, detector.ErrNotReady):
		writeNotReady(w)
	case errors.Is(err, detector.ErrEncode):
		hlog.FromRequest(r).Error().Err(err).Msg("annotated image encoding failed")
		encoding.WriteError(w, http.StatusInternalServerError, "encode_failed", "Failed to encode annotated image")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("detection failed")
		encoding.WriteError(w, http.StatusInternalServerError, "detection_failed", "Detection failed")
	}
}

func allowedContentType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return allowedContentTypes[strings.ToLower(mediaType)]
}

func parseConfidence(raw string) (float64, bool) {
	if raw == "" {
		return DefaultConfidence, true
	}
	conf, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(conf) || conf < 0 || conf > 1 {
		return 0, false
	}
	return conf, true
}
