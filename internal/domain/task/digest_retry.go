package task

type DigestRetryTask struct {
	UserID     string `json:"user_id"`
	Pages      int    `json:"pages"`
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error"` // Error message from the last failure
}

func (t *DigestRetryTask) TaskType() string {
	return TypeDigestRetry
}

func (t *DigestRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
