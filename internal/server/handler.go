package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cvmatcher/internal/errors"
	"cvmatcher/internal/ingest"
	"cvmatcher/internal/types"
)

// Multipart parts above this size are spooled to disk by net/http.
const multipartMemory = 32 << 20

func (s *Server) tracer() trace.Tracer {
	return s.App.Observability.Tracer("cvmatcher.api")
}

// uploadHandler ingests multipart résumés ("files") against one job
// description ("jd")
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer().Start(r.Context(), "api.upload")
	defer span.End()

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		s.writeAppError(w, r, requestBodyError(err, "Invalid multipart form"))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.Logger.Warn("Failed to remove multipart temp files", "error", err.Error())
		}
	}()

	jdParts := r.MultipartForm.File["jd"]
	if len(jdParts) == 0 {
		s.writeAppError(w, r, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"Job description file is required (form field 'jd')", nil))
		return
	}
	jd, err := readPart(jdParts[0])
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, err)
		return
	}

	parts := r.MultipartForm.File["files"]
	documents := make([]ingest.Document, 0, len(parts))
	for _, part := range parts {
		doc, err := readPart(part)
		if err != nil {
			span.RecordError(err)
			s.writeAppError(w, r, err)
			return
		}
		documents = append(documents, doc)
	}

	span.SetAttributes(
		attribute.Int("request.files", len(documents)),
		attribute.String("operation", "upload"),
	)

	result, err := s.App.Ingest.ProcessUpload(ctx, documents, jd)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.Int("response.successful", result.Summary.Successful),
		attribute.Int("response.failed", result.Summary.Failed),
	)
	writeJSON(w, http.StatusOK, result)
}

func readPart(fh *multipart.FileHeader) (ingest.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return ingest.Document{}, errors.NewIOError(errors.ErrCodeFileNotReadable,
			"Failed to open uploaded file", err).WithContext("filename", fh.Filename)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ingest.Document{}, errors.NewIOError(errors.ErrCodeFileNotReadable,
			"Failed to read uploaded file", err).WithContext("filename", fh.Filename)
	}
	return ingest.Document{Filename: fh.Filename, Data: data}, nil
}

// searchHandler accepts GET ?query=&limit= or a POST JSON body
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer().Start(r.Context(), "api.search")
	defer span.End()

	var req types.SearchRequest
	if r.Method == http.MethodPost {
		if err := parseJSONRequest(r, &req); err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			s.writeAppError(w, r, err)
			return
		}
	} else {
		limit, err := limitParam(r)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		req = types.SearchRequest{Query: r.URL.Query().Get("query"), Limit: limit}
	}

	span.SetAttributes(
		attribute.Int("request.query_length", len(req.Query)),
		attribute.Int("request.limit", req.Limit),
		attribute.String("operation", "search"),
	)

	resp, err := s.App.Ingest.Search(ctx, req.Query, req.Limit)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Int("response.count", resp.Count))
	writeJSON(w, http.StatusOK, resp)
}

// listCandidatesHandler returns stored candidates newest first
func (s *Server) listCandidatesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer().Start(r.Context(), "api.candidates.list")
	defer span.End()

	limit, err := limitParam(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	resp, err := s.App.Ingest.List(ctx, limit)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Int("response.count", resp.Count))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteCandidateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer().Start(r.Context(), "api.candidates.delete")
	defer span.End()

	id := r.PathValue("id")
	span.SetAttributes(attribute.String("candidate.id", id))

	resp, err := s.App.Ingest.Delete(ctx, id)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) clearCandidatesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer().Start(r.Context(), "api.candidates.clear")
	defer span.End()

	resp, err := s.App.Ingest.Clear(ctx)
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// limitParam parses the optional ?limit= query parameter; 0 means default
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"limit must be a positive integer", err)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
