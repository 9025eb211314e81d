package types

// CandidateRecord is the payload stored alongside each résumé vector
type CandidateRecord struct {
	ID         string  `json:"id" mapstructure:"id"`
	FullName   string  `json:"full_name" mapstructure:"full_name"`
	JobTitle   string  `json:"job_title" mapstructure:"job_title"`
	FullText   string  `json:"full_text" mapstructure:"full_text"`
	Filename   string  `json:"filename" mapstructure:"filename"`
	LinesCount int     `json:"lines_count" mapstructure:"lines_count"`
	WordsCount int     `json:"words_count" mapstructure:"words_count"`
	Timestamp  float64 `json:"timestamp" mapstructure:"timestamp"` // Unix seconds
}

// CandidateInfo is the per-file summary returned from an upload
type CandidateInfo struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	JobTitle   string `json:"job_title"`
	LinesCount int    `json:"lines_count"`
	WordsCount int    `json:"words_count"`
}

// Upload result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// FileResult reports the outcome of processing one uploaded file
type FileResult struct {
	Filename      string         `json:"filename"`
	Status        string         `json:"status"` // "success" or "error"
	CandidateInfo *CandidateInfo `json:"candidate_info,omitempty"`
	Message       string         `json:"message,omitempty"`
}

// BatchSummary counts outcomes across an upload
type BatchSummary struct {
	TotalFiles int `json:"total_files"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchResult is the response to an upload of résumés plus a job description
type BatchResult struct {
	JobDescription string       `json:"job_description"`
	Candidates     []FileResult `json:"candidates"`
	Summary        BatchSummary `json:"summary"`
}

// SearchRequest is the JSON body accepted by POST /search
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchHit is one ranked candidate in a search response
type SearchHit struct {
	ID          string  `json:"id"`
	Score       float32 `json:"score"`
	FullName    string  `json:"full_name"`
	JobTitle    string  `json:"job_title"`
	Filename    string  `json:"filename"`
	LinesCount  int     `json:"lines_count"`
	WordsCount  int     `json:"words_count"`
	Timestamp   float64 `json:"timestamp"`
	TextPreview string  `json:"text_preview"`
}

// SearchResponse is returned by the search endpoints
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

// CandidateSummary is a stored record without its full text
type CandidateSummary struct {
	ID         string  `json:"id"`
	FullName   string  `json:"full_name"`
	JobTitle   string  `json:"job_title"`
	Filename   string  `json:"filename"`
	LinesCount int     `json:"lines_count"`
	WordsCount int     `json:"words_count"`
	Timestamp  float64 `json:"timestamp"`
}

// CandidateListResponse is returned by GET /candidates
type CandidateListResponse struct {
	Candidates []CandidateSummary `json:"candidates"`
	Count      int                `json:"count"`
}

// DeleteResponse is returned by the delete endpoints
type DeleteResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Summary drops the full text from a stored record
func (r CandidateRecord) Summary() CandidateSummary {
	return CandidateSummary{
		ID:         r.ID,
		FullName:   r.FullName,
		JobTitle:   r.JobTitle,
		Filename:   r.Filename,
		LinesCount: r.LinesCount,
		WordsCount: r.WordsCount,
		Timestamp:  r.Timestamp,
	}
}
