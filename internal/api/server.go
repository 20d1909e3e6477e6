package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halcyonreed/viptr/internal/model"
	"github.com/halcyonreed/viptr/internal/preprocess"
)

// maxUploadBytes bounds the parsed size of a multipart recognition request.
const maxUploadBytes = 32 << 20

type Server struct {
	service *RecognitionService
	clock   func() time.Time
}

func NewServer(service *RecognitionService) *Server {
	return &Server{
		service: service,
		clock:   time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/recognize", s.handleRecognize)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
}

func (s *Server) handleRecognize(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "recognition service not configured", "", "")
	}

	var (
		imgs  []image.Image
		names []string
		err   error
	)
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, "multipart/form-data") {
		imgs, names, err = decodeMultipartImages(c.Request())
	} else {
		imgs, names, err = decodeJSONImages(c.Request().Body)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return writeBadRequest(c, err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}

	preds, err := s.service.Recognize(c.Request().Context(), imgs)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return writeBadRequest(c, err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}

	words := make([]WordResult, len(preds))
	for i, p := range preds {
		words[i] = WordResult{
			Name:       names[i],
			Value:      p.Text,
			Confidence: p.Confidence,
		}
	}
	return c.JSON(http.StatusOK, RecognizeResponse{
		ID:      "rec-" + uuid.NewString(),
		Object:  "recognition",
		Created: s.clock().Unix(),
		Model:   s.service.Variant(),
		Words:   words,
	})
}

func (s *Server) handleListModels(c *echo.Context) error {
	loaded := ""
	if s.service != nil {
		loaded = s.service.Variant()
	}
	created := s.clock().Unix()
	names := model.VariantNames()
	data := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		data = append(data, ModelInfo{
			ID:      name,
			Object:  "model",
			Created: created,
			OwnedBy: "local",
			Loaded:  name == loaded,
		})
	}
	return c.JSON(http.StatusOK, ModelList{Object: "list", Data: data})
}

func (s *Server) handleHealth(c *echo.Context) error {
	if s.service == nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "no model"})
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Model:  s.service.Variant(),
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

// decodeJSONImages parses a RecognizeRequest body, base64-decoding every
// payload. Position i of the returned slices describes image i.
func decodeJSONImages(r io.Reader) ([]image.Image, []string, error) {
	req, err := decodeJSON[RecognizeRequest](r)
	if err != nil {
		return nil, nil, newInvalidRequest(fmt.Sprintf("parse request: %v", err))
	}
	if len(req.Images) == 0 {
		return nil, nil, newInvalidRequest("images is required and must not be empty")
	}
	imgs := make([]image.Image, len(req.Images))
	names := make([]string, len(req.Images))
	for i, payload := range req.Images {
		raw, err := base64.StdEncoding.DecodeString(stripDataURI(payload.Data))
		if err != nil {
			return nil, nil, newInvalidRequest(fmt.Sprintf("images[%d]: invalid base64: %v", i, err))
		}
		img, err := preprocess.Decode(raw)
		if err != nil {
			return nil, nil, newInvalidRequest(fmt.Sprintf("images[%d]: %v", i, err))
		}
		imgs[i] = img
		names[i] = payload.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("image_%d", i)
		}
	}
	return imgs, names, nil
}

// decodeMultipartImages reads the file parts of the "images" form field
// (falling back to "files") in upload order.
func decodeMultipartImages(r *http.Request) ([]image.Image, []string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, newInvalidRequest(fmt.Sprintf("parse multipart form: %v", err))
	}
	form := r.MultipartForm
	if form == nil {
		return nil, nil, newInvalidRequest("empty multipart form")
	}
	parts := form.File["images"]
	if len(parts) == 0 {
		parts = form.File["files"]
	}
	if len(parts) == 0 {
		return nil, nil, newInvalidRequest(`multipart form has no "images" file parts`)
	}
	imgs := make([]image.Image, len(parts))
	names := make([]string, len(parts))
	for i, part := range parts {
		img, err := decodeFilePart(part)
		if err != nil {
			return nil, nil, newInvalidRequest(fmt.Sprintf("part %q: %v", part.Filename, err))
		}
		imgs[i] = img
		names[i] = part.Filename
	}
	return imgs, names, nil
}

func decodeFilePart(part *multipart.FileHeader) (image.Image, error) {
	f, err := part.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return preprocess.Decode(raw)
}

func stripDataURI(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
