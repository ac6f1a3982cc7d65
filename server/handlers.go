package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xhad/inspira/pkg/store"
)

const previewLength = 200

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type uploadResponse struct {
	Filename     string `json:"filename"`
	Message      string `json:"message"`
	Preview      string `json:"preview,omitempty"`
	ChunksStored int    `json:"chunks_stored,omitempty"`
}

type chatRequest struct {
	Question string   `json:"question" validate:"required"`
	Context  []string `json:"context"`
}

type chatResponse struct {
	Answer  string   `json:"answer,omitempty"`
	Context []string `json:"context"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Message: "Inspira Backend is running 🚀",
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadMB<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.deps.Metrics.ObserveUpload("failed")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("File upload failed: file exceeds %d MB", s.config.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "File upload failed: "+err.Error())
		return
	}
	defer file.Close()

	resp, err := s.processUpload(r.Context(), header.Filename, file)
	if err != nil {
		s.deps.Metrics.ObserveUpload("failed")
		s.logger.Error("Upload failed", zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload_failed", "File upload failed: "+err.Error())
		return
	}

	if resp.ChunksStored > 0 {
		s.deps.Metrics.ObserveUpload("processed")
	} else {
		s.deps.Metrics.ObserveUpload("empty")
	}
	writeJSON(w, http.StatusOK, resp)
}

// processUpload spools the upload to a private temp file, which is always
// removed, and stores the extracted text when there is any.
func (s *Server) processUpload(ctx context.Context, filename string, src io.Reader) (*uploadResponse, error) {
	tmp, err := os.CreateTemp(s.config.UploadDir, "temp_*_"+tempSuffix(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	var text string
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		text = s.deps.Extractor.Extract(ctx, tmpPath)
	}

	if text == "" {
		return &uploadResponse{
			Filename: filename,
			Message:  "File uploaded but no text extracted (or empty).",
		}, nil
	}

	chunks, err := s.deps.Chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk text: %w", err)
	}

	metadata := make([]map[string]interface{}, len(chunks))
	for i := range chunks {
		metadata[i] = map[string]interface{}{
			"source":      store.DefaultSource,
			"filename":    filename,
			"chunk_index": i,
		}
	}

	ids, err := s.deps.Vault.Store(ctx, chunks, metadata)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Processed upload",
		zap.String("filename", filename),
		zap.Int("chars", len(text)),
		zap.Int("chunks", len(ids)),
	)

	return &uploadResponse{
		Filename:     filename,
		Message:      "File processed successfully!",
		Preview:      preview(text),
		ChunksStored: len(ids),
	}, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}

// tempSuffix reduces a client filename to something safe inside a temp
// file pattern.
func tempSuffix(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		if r == '*' || r == os.PathSeparator || r == '/' {
			return '_'
		}
		return r
	}, base)
	if base == "." || base == "" {
		return "upload"
	}
	return base
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	state, err := s.deps.Workflow.Invoke(r.Context(), req.Question, req.Context)
	if err != nil {
		s.logger.Error("Chat failed", zap.String("question", req.Question), zap.Error(err))
		status, code := chatErrorStatus(err)
		writeError(w, status, code, "Chat failed: "+err.Error())
		return
	}

	resp := chatResponse{Answer: state.Answer, Context: state.Context}
	if resp.Context == nil {
		resp.Context = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "chat_failed"
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
