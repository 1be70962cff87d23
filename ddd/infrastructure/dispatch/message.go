package dispatch

import (
	"encoding/json"
	"errors"
	"time"
)

// JobMessage is the payload published on the jobs topic.
type JobMessage struct {
	JobID       string    `json:"job_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// EncodeJobMessage 编码作业消息
func EncodeJobMessage(jobID string, at time.Time) ([]byte, error) {
	return json.Marshal(JobMessage{JobID: jobID, SubmittedAt: at.UTC()})
}

// DecodeJobMessage rejects payloads without a job id.
func DecodeJobMessage(raw []byte) (JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return JobMessage{}, err
	}
	if m.JobID == "" {
		return JobMessage{}, errors.New("job message without job_id")
	}
	return m, nil
}
