package dto

// ProcessResponse is the synchronous summary returned by POST /process.
type ProcessResponse struct {
	JobID      string `json:"job_id"`
	SourceID   string `json:"source_id"`
	Status     string `json:"status"`
	TotalClips int    `json:"total_clips"`
}

// ProcessAsyncResponse acknowledges an enqueued job.
type ProcessAsyncResponse struct {
	Status       string  `json:"status"`
	UseStreaming bool    `json:"use_streaming"`
	FileSizeMB   float64 `json:"file_size_mb"`
}
