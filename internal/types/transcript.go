package types

// TranscriptChunk is one timestamped piece of the source transcript as
// returned by the external transcription service. Chunks are ordered by
// StartSec and are never persisted; the pipeline consumes them once during
// segmentation.
type TranscriptChunk struct {
	StartSec float64 `json:"start_time"`
	EndSec   float64 `json:"end_time"`
	Text     string  `json:"text"`
}

type Transcript []TranscriptChunk

func (t Transcript) DurationSec() float64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].EndSec - t[0].StartSec
}
