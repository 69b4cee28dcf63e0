package models

import "time"

// ProcessRequest identifies one source video to process.
type ProcessRequest struct {
	SourceID        string  `json:"source_id" binding:"required"`
	VideoKey        string  `json:"video_key" binding:"required"`
	WebhookURL      string  `json:"webhook_url" binding:"required"`
	MinClipDuration float64 `json:"min_clip_duration,omitempty"`
	MaxClipDuration float64 `json:"max_clip_duration,omitempty"`
	MinSceneLength  float64 `json:"min_scene_length,omitempty"`
}

// QueueMessage is the enqueued form of a ProcessRequest. Immutable once
// published; its lifecycle ends on ack or dead-letter.
type QueueMessage struct {
	ProcessRequest
	VideoURL     string    `json:"video_url"`
	SubmittedAt  time.Time `json:"submitted_at"`
	UseStreaming bool      `json:"use_streaming"`
}

// DeadLetter wraps a QueueMessage that exhausted its retry budget.
type DeadLetter struct {
	Message  QueueMessage `json:"message"`
	Error    string       `json:"error"`
	FailedAt time.Time    `json:"failed_at"`
}

// ContainerClip is the raw output of the media backend for one clip.
// Binary payloads are base64-encoded for transport.
type ContainerClip struct {
	ClipID          string  `json:"clip_id"`
	StartTime       float64 `json:"start_time"`
	EndTime         float64 `json:"end_time"`
	Duration        float64 `json:"duration"`
	VideoBase64     string  `json:"video_base64"`
	ThumbnailBase64 string  `json:"thumbnail_base64,omitempty"`
}

// ContainerResponse is produced once per successful media-processing call.
type ContainerResponse struct {
	JobID         string          `json:"job_id"`
	TotalDuration float64         `json:"total_duration"`
	TotalClips    int             `json:"total_clips"`
	Clips         []ContainerClip `json:"clips"`
	AudioBase64   string          `json:"audio_base64,omitempty"`
}

// TranscriptSegment is a timed piece of speech. Segments are ordered and
// non-overlapping by convention, but neither is guaranteed.
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptResult is the normalized output of the speech-to-text service.
type TranscriptResult struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
	Language string              `json:"language,omitempty"`
	Duration float64             `json:"duration,omitempty"`
}

// ClipEmbedding pairs a clip id with its transcript embedding vector.
type ClipEmbedding struct {
	ClipID    string    `json:"clip_id"`
	Embedding []float64 `json:"embedding"`
}

// SimilarityPair is an undirected pair of clips with cosine similarity.
type SimilarityPair struct {
	ClipID1    string  `json:"clip_id_1"`
	ClipID2    string  `json:"clip_id_2"`
	Similarity float64 `json:"similarity"`
}

// GroupType classifies how strongly the clips in a group relate.
type GroupType string

const (
	GroupDuplicate     GroupType = "duplicate"
	GroupMultipleTakes GroupType = "multiple_takes"
	GroupSameTopic     GroupType = "same_topic"
)

// ClipGroup is a connected component of pairwise-similar clips.
// representative_clip_id is always a member of clip_ids.
type ClipGroup struct {
	GroupID              string             `json:"group_id"`
	GroupType            GroupType          `json:"group_type"`
	ClipIDs              []string           `json:"clip_ids"`
	RepresentativeClipID string             `json:"representative_clip_id"`
	SimilarityScores     map[string]float64 `json:"similarity_scores"`
}

// UploadedClip is the persisted form of a ContainerClip after upload.
type UploadedClip struct {
	ClipID            string  `json:"clip_id"`
	StartTime         float64 `json:"start_time"`
	EndTime           float64 `json:"end_time"`
	Duration          float64 `json:"duration"`
	FileKey           string  `json:"file_key"`
	FileURL           string  `json:"file_url"`
	ThumbnailURL      string  `json:"thumbnail_url,omitempty"`
	TranscriptSegment *string `json:"transcript_segment,omitempty"`
	DetectionMethod   string  `json:"detection_method"`
}

// WebhookPayload is the completion/failure callback body.
type WebhookPayload struct {
	SourceID           string          `json:"source_id"`
	Status             string          `json:"status"`
	Clips              []UploadedClip  `json:"clips,omitempty"`
	DurationSeconds    float64         `json:"duration_seconds,omitempty"`
	SourceThumbnailURL string          `json:"source_thumbnail_url,omitempty"`
	Embeddings         []ClipEmbedding `json:"embeddings,omitempty"`
	Groups             []ClipGroup     `json:"groups,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)
