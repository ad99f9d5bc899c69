package task

import "github.com/goccy/go-json"

const (
	TypeDealDigest  = "DealDigestTask"
	TypeDigestRetry = "DigestRetryTask"
)

// Types lists every task type that owns a stream.
var Types = []string{TypeDealDigest, TypeDigestRetry}

type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

// DefaultTaskValue provides a common implementation for TaskValue
func DefaultTaskValue(task interface{}) ([]byte, error) {
	return json.Marshal(task)
}

func UnmarshalTask[T Task](data []byte) (T, error) {
	var t T
	err := json.Unmarshal(data, &t)
	return t, err
}
