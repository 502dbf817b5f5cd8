package persist

// Record is the JSON document stored under the board's key. Images are PNG
// data URLs; History is oldest first. Redo state is never stored.
type Record struct {
	Timestamp int64    `json:"timestamp"`
	ImageData string   `json:"imageData"`
	History   []string `json:"history"`
}
