package task

// DealDigestTask asks a worker to rank today's deals for one user.
type DealDigestTask struct {
	UserID string `json:"user_id"`
	Pages  int    `json:"pages"` // Catalog pages to pull before ranking
}

func (t *DealDigestTask) TaskType() string {
	return TypeDealDigest
}

func (t *DealDigestTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
