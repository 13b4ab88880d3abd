package model

// Market is the static reference row a sync run resolves by slug.
type Market struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	ConditionID string `json:"condition_id"`
	QuestionID  string `json:"question_id,omitempty"`
	Oracle      string `json:"oracle,omitempty"`
	YesTokenID  string `json:"yes_token_id"`
	NoTokenID   string `json:"no_token_id"`
	Status      string `json:"status"`
}

// Checkpoint is the last committed block for a sync key.
type Checkpoint struct {
	Key       string `json:"key"`
	LastBlock uint64 `json:"last_block"`
}
