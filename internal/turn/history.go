package turn

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Record is the latest translation seen during one turn.
type Record struct {
	Turn           uint64    `json:"turn"`
	InputSection   Section   `json:"input_section"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	Input          string    `json:"input"`
	Output         string    `json:"output"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// History keeps the most recent turns. Later translations within a turn
// replace earlier ones.
type History struct {
	*lru.Cache[uint64, Record]
}

// NewHistory creates a history bounded to size turns.
func NewHistory(size int) (*History, error) {
	cache, err := lru.New[uint64, Record](size)
	if err != nil {
		return nil, err
	}

	return &History{Cache: cache}, nil
}

// Records returns the retained turns, oldest first.
func (h *History) Records() []Record {
	out := make([]Record, 0, h.Len())
	for _, id := range h.Keys() {
		if rec, ok := h.Peek(id); ok {
			out = append(out, rec)
		}
	}

	return out
}
