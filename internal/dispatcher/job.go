package dispatcher

import "encoding/json"

// Task kinds carried on the job payload.
const (
	TaskExtract    = "extract"
	TaskStudyGuide = "study_guide"
	TaskGradeExam  = "grade_exam"
)

// Job is the queue payload for one document.
type Job struct {
	JobID          string `json:"job_id"`
	Task           string `json:"task"`
	FileKey        string `json:"file_key"`
	Filename       string `json:"filename,omitempty"`
	Topic          string `json:"topic,omitempty"`
	AnswerKey      string `json:"answer_key,omitempty"`
	Engine         string `json:"ai_engine,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Attempt        int    `json:"attempt,omitempty"`
}

func (j Job) Encode() []byte {
	b, _ := json.Marshal(j)
	return b
}

func DecodeJob(data []byte) (Job, error) {
	var j Job
	err := json.Unmarshal(data, &j)
	return j, err
}
