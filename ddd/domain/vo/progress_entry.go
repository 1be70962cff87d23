package vo

// ProgressEntry is the latest progress snapshot for a job.
type ProgressEntry struct {
	Percentage int       `json:"progress"`
	Message    string    `json:"message"`
	Status     JobStatus `json:"status"`
}

// ClampPercentage keeps a reported value inside 0..100.
func ClampPercentage(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
