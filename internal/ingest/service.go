// Package ingest turns uploaded résumés into searchable candidate records
// and serves search, listing and deletion over them.
package ingest

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"cvmatcher/internal/archive"
	"cvmatcher/internal/candidate"
	"cvmatcher/internal/config"
	"cvmatcher/internal/embedding"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/textsource"
	"cvmatcher/internal/types"
	"cvmatcher/internal/utils"
	"cvmatcher/internal/vectorstore"
)

// Document is one uploaded file.
type Document struct {
	Filename string
	Data     []byte
}

// Observer receives business events for metrics.
type Observer interface {
	ObserveDocument(ctx context.Context, status string)
	ObserveSearch(ctx context.Context, results int)
}

// Service runs the upload pipeline and the read/delete operations on the
// candidate collection.
type Service struct {
	sources  *textsource.Registry
	embedder embedding.Embedder
	store    vectorstore.Store
	archive  archive.Archive
	pool     *ants.Pool
	cfg      config.IngestConfig
	app      config.AppConfig
	observer Observer
	logger   *errors.Logger

	now   func() time.Time
	newID func() string
}

// New creates a Service with a worker pool of cfg.Ingest.Workers.
func New(cfg *config.Config, embedder embedding.Embedder, store vectorstore.Store, arch archive.Archive, logger *errors.Logger) (*Service, error) {
	workers := max(cfg.Ingest.Workers, 1)
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternal, "Failed to create worker pool", err)
	}
	if arch == nil {
		arch = archive.Noop{}
	}

	sources := textsource.NewRegistry()
	if len(cfg.App.AllowedExtensions) > 0 {
		sources.Restrict(cfg.App.AllowedExtensions)
	}

	return &Service{
		sources:  sources,
		embedder: embedder,
		store:    store,
		archive:  arch,
		pool:     pool,
		cfg:      cfg.Ingest,
		app:      cfg.App,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// SetObserver registers a metrics observer.
func (s *Service) SetObserver(o Observer) { s.observer = o }

// Extensions lists the accepted upload extensions.
func (s *Service) Extensions() []string { return s.sources.Extensions() }

// outcome is the internal result of processing one file.
type outcome struct {
	result types.FileResult
	// reachedDependency is set once the file got as far as the embedder.
	reachedDependency bool
	err               error
}

// ProcessUpload ingests every candidate document and decodes the job
// description. Per-file problems are reported in the result. The call
// fails as a whole only when the job description cannot be read or when
// every file that reached the embedder or store failed because it was
// unavailable.
func (s *Service) ProcessUpload(ctx context.Context, documents []Document, jobDescription Document) (*types.BatchResult, error) {
	if len(documents) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"At least one candidate file is required", nil)
	}
	if s.app.MaxUploadFiles > 0 && len(documents) > s.app.MaxUploadFiles {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("Too many files: %d (maximum %d)", len(documents), s.app.MaxUploadFiles), nil)
	}

	spool, err := textsource.NewSpool(s.app.UploadDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := spool.Close(); err != nil {
			s.logger.Warn("Failed to remove upload directory", "dir", spool.Dir(), "error", err.Error())
		}
	}()

	jdText, err := s.decode(spool, jobDescription)
	if err != nil {
		message := err.Error()
		if appErr, ok := errors.As(err); ok {
			message = appErr.Message
		}
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"Could not read job description: "+message, err).
			WithContext("filename", jobDescription.Filename)
	}

	outcomes := make([]outcome, len(documents))
	var wg sync.WaitGroup
	for i, doc := range documents {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			outcomes[i] = s.processSafely(ctx, spool, doc)
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			outcomes[i] = failure(doc.Filename, errors.NewInternalError(errors.ErrCodeInternal,
				"Failed to schedule file processing", err))
		}
	}
	wg.Wait()

	batch := &types.BatchResult{
		JobDescription: strings.TrimSpace(jdText),
		Candidates:     make([]types.FileResult, len(outcomes)),
		Summary:        types.BatchSummary{TotalFiles: len(outcomes)},
	}
	var reached, unavailable int
	var lastUnavailable error
	for i, o := range outcomes {
		batch.Candidates[i] = o.result
		if o.result.Status == types.StatusSuccess {
			batch.Summary.Successful++
		} else {
			batch.Summary.Failed++
		}
		if o.reachedDependency {
			reached++
			if errors.IsType(o.err, errors.ErrorTypeDependency) {
				unavailable++
				lastUnavailable = o.err
			}
		}
	}

	s.logger.Info("Upload batch processed",
		"total_files", batch.Summary.TotalFiles,
		"successful", batch.Summary.Successful,
		"failed", batch.Summary.Failed)

	if reached > 0 && unavailable == reached {
		return nil, errors.NewDependencyError(errors.ErrCodeDependencyUnavailable,
			"Service dependencies unavailable; no documents were stored", lastUnavailable)
	}
	return batch, nil
}

// processSafely turns a panic in one file into an error entry for that file.
func (s *Service) processSafely(ctx context.Context, spool *textsource.Spool, doc Document) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Slog().Error("Panic while processing file",
				"filename", doc.Filename,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			o = failure(doc.Filename, errors.NewInternalError(errors.ErrCodeInternal,
				"Internal error while processing file", nil))
		}
	}()
	o = s.processOne(ctx, spool, doc)

	status := o.result.Status
	if s.observer != nil {
		s.observer.ObserveDocument(ctx, status)
	}
	return o
}

func (s *Service) processOne(ctx context.Context, spool *textsource.Spool, doc Document) outcome {
	if err := s.sources.CheckExtension(doc.Filename); err != nil {
		return failure(doc.Filename, err)
	}
	if err := s.checkSize(doc); err != nil {
		return failure(doc.Filename, err)
	}

	path, release, err := spool.Write(doc.Filename, doc.Data)
	defer release()
	if err != nil {
		return failure(doc.Filename, err)
	}

	text, err := s.sources.Extract(doc.Filename, path)
	if err != nil {
		return failure(doc.Filename, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return failure(doc.Filename, errors.NewValidationError(errors.ErrCodeEmptyDocument,
			"No text could be extracted from file", nil))
	}

	fields := candidate.Extract(text)

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return dependencyFailure(doc.Filename, err)
	}

	record := types.CandidateRecord{
		ID:         s.newID(),
		FullName:   fields.FullName,
		JobTitle:   fields.JobTitle,
		FullText:   text,
		Filename:   doc.Filename,
		LinesCount: fields.LineCount,
		WordsCount: fields.WordCount,
		Timestamp:  float64(s.now().UnixMicro()) / 1e6,
	}

	if err := s.archive.Put(ctx, record.ID, doc.Filename, path); err != nil {
		return dependencyFailure(doc.Filename, err)
	}
	if err := s.store.Upsert(ctx, record, vector); err != nil {
		if delErr := s.archive.Delete(ctx, record.ID); delErr != nil {
			s.logger.Warn("Failed to remove archived document after store failure",
				"id", record.ID, "error", delErr.Error())
		}
		return dependencyFailure(doc.Filename, err)
	}

	s.logger.Debug("Stored candidate",
		"id", record.ID,
		"filename", doc.Filename,
		"full_name", record.FullName,
		"job_title", record.JobTitle)

	return outcome{result: types.FileResult{
		Filename: doc.Filename,
		Status:   types.StatusSuccess,
		CandidateInfo: &types.CandidateInfo{
			ID:         record.ID,
			FullName:   record.FullName,
			JobTitle:   record.JobTitle,
			LinesCount: record.LinesCount,
			WordsCount: record.WordsCount,
		},
	}}
}

func failure(filename string, err error) outcome {
	message := err.Error()
	if appErr, ok := errors.As(err); ok {
		message = appErr.Message
	}
	return outcome{
		result: types.FileResult{Filename: filename, Status: types.StatusError, Message: message},
		err:    err,
	}
}

func dependencyFailure(filename string, err error) outcome {
	o := failure(filename, err)
	o.reachedDependency = true
	return o
}

func (s *Service) checkSize(doc Document) error {
	if s.app.MaxFileSize > 0 && int64(len(doc.Data)) > s.app.MaxFileSize {
		return errors.NewValidationError(errors.ErrCodeFileTooLarge,
			fmt.Sprintf("File too large: %s (maximum %s)",
				utils.FormatFileSize(int64(len(doc.Data))), utils.FormatFileSize(s.app.MaxFileSize)), nil)
	}
	return nil
}

// decode spools and decodes one document.
func (s *Service) decode(spool *textsource.Spool, doc Document) (string, error) {
	if err := s.sources.CheckExtension(doc.Filename); err != nil {
		return "", err
	}
	path, release, err := spool.Write(doc.Filename, doc.Data)
	defer release()
	if err != nil {
		return "", err
	}
	return s.sources.Extract(doc.Filename, path)
}

// Search embeds query and returns the closest candidates.
func (s *Service) Search(ctx context.Context, query string, limit int) (*types.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidQuery, "Query cannot be empty", nil)
	}
	if limit <= 0 {
		limit = s.cfg.SearchLimit
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.Search(ctx, vector, limit)
	if err != nil {
		return nil, err
	}

	resp := &types.SearchResponse{Query: query, Results: make([]types.SearchHit, 0, len(hits))}
	for _, hit := range hits {
		r := hit.Record
		resp.Results = append(resp.Results, types.SearchHit{
			ID:          r.ID,
			Score:       hit.Score,
			FullName:    r.FullName,
			JobTitle:    r.JobTitle,
			Filename:    r.Filename,
			LinesCount:  r.LinesCount,
			WordsCount:  r.WordsCount,
			Timestamp:   r.Timestamp,
			TextPreview: Preview(r.FullText, s.cfg.PreviewLength),
		})
	}
	resp.Count = len(resp.Results)

	if s.observer != nil {
		s.observer.ObserveSearch(ctx, resp.Count)
	}
	return resp, nil
}

// Preview returns the first n characters of text, followed by "..." when
// text is longer.
func Preview(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}

// List returns stored candidates newest first, at most limit of them.
func (s *Service) List(ctx context.Context, limit int) (*types.CandidateListResponse, error) {
	if limit <= 0 {
		limit = s.cfg.ListLimit
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	resp := &types.CandidateListResponse{Candidates: []types.CandidateSummary{}}
	if total == 0 {
		return resp, nil
	}

	// Order is by timestamp, so every record is read before capping.
	records, err := s.store.List(ctx, total)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, func(a, b types.CandidateRecord) int {
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		return 0
	})
	if len(records) > limit {
		records = records[:limit]
	}

	for _, r := range records {
		resp.Candidates = append(resp.Candidates, r.Summary())
	}
	resp.Count = len(resp.Candidates)
	return resp, nil
}

// Delete removes one candidate. Unknown ids succeed; ids that are not
// UUIDs report Success false.
func (s *Service) Delete(ctx context.Context, id string) (*types.DeleteResponse, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		// No stored point can carry a malformed id.
		s.logger.Info("Delete skipped for malformed id", "id", id)
		return &types.DeleteResponse{Success: false, ID: id, Message: "Candidate not found"}, nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	if err := s.archive.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to remove archived document", "id", id, "error", err.Error())
	}

	s.logger.Info("Deleted candidate", "id", id)
	return &types.DeleteResponse{Success: true, ID: id}, nil
}

// Clear drops every candidate by recreating the collection.
func (s *Service) Clear(ctx context.Context) (*types.DeleteResponse, error) {
	if err := s.store.DeleteAll(ctx); err != nil {
		return nil, err
	}
	if err := s.archive.Clear(ctx); err != nil {
		s.logger.Warn("Failed to clear document archive", "error", err.Error())
	}

	s.logger.Info("Cleared all candidates")
	return &types.DeleteResponse{Success: true, Message: "All candidates deleted"}, nil
}

// Health checks the vector store.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

// PoolStats reports worker pool usage.
func (s *Service) PoolStats() map[string]any {
	return map[string]any{
		"capacity": s.pool.Cap(),
		"running":  s.pool.Running(),
		"waiting":  s.pool.Waiting(),
	}
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}
