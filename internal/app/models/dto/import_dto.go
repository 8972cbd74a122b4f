package dto

// ImportAcceptedResponse is returned once an import job has been queued
type ImportAcceptedResponse struct {
	ImportID     string `json:"importId"`
	JobID        string `json:"jobId"`
	ErrorLogPath string `json:"errorLogPath"`
}

// ImportErrorLogResponse carries the lines of a finished run's error log
type ImportErrorLogResponse struct {
	ImportID string   `json:"importId"`
	Lines    []string `json:"lines"`
}
