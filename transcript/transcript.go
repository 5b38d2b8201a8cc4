// Package transcript holds the transcription result shared by the server and
// its clients.
package transcript

// Chunk is one timestamped segment of a transcript.
type Chunk struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the worker's final payload.
type Result struct {
	Success        bool    `json:"success"`
	Text           string  `json:"text"`
	ProcessingTime float64 `json:"processing_time"`
	Chunks         []Chunk `json:"chunks,omitempty"`
	AudioDuration  float64 `json:"audio_duration,omitempty"`
	ModelUsed      string  `json:"model_used,omitempty"`
	Error          string  `json:"error,omitempty"`
}
