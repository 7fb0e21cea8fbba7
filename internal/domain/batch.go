package domain

// JobProgress is a point-in-time view of a running batch.
type JobProgress struct {
	Total         int64 `json:"total"`
	Processed     int64 `json:"processed"`
	IsRunning     bool  `json:"is_running"`
	StopRequested bool  `json:"stop_requested"`
}

// BatchResult summarises a completed or stopped batch run. Remaining lists
// the items that were never started, so a stopped run can be resumed.
type BatchResult struct {
	RunID        string   `json:"run_id"`
	Success      bool     `json:"success"`
	Total        int      `json:"total"`
	Processed    int      `json:"processed"`
	Succeeded    int      `json:"succeeded"`
	Failed       int      `json:"failed"`
	StoppedEarly bool     `json:"stopped_early"`
	Remaining    []string `json:"remaining,omitempty"`
}
