package model

// Answer is an answer post authored by a retained user. Body carries the
// raw HTML markup from the dump; it is consumed once by the feature
// extractor and not mutated afterwards.
type Answer struct {
	ID       int    `json:"id"`
	OwnerID  int    `json:"owner_id"`
	ParentID int    `json:"parent_id"`
	Score    int    `json:"score"`
	Accepted bool   `json:"accepted"`
	Body     string `json:"-"`
}

// LengthBucket is the categorical answer-length feature.
type LengthBucket string

const (
	LengthShort   LengthBucket = "short"
	LengthSummary LengthBucket = "summary" // short but structured (lists, headings)
	LengthMedium  LengthBucket = "medium"
	LengthLong    LengthBucket = "long"
)

// AnswerFeatures is the feature vector extracted from one answer body,
// plus the regression target.
type AnswerFeatures struct {
	AnswerID  int          `json:"answer_id"`
	OwnerID   int          `json:"owner_id"`
	Length    LengthBucket `json:"length"`
	HasCode   bool         `json:"has_code"`
	HasImage  bool         `json:"has_image"`
	HasRef    bool         `json:"has_ref"`
	WordCount int          `json:"word_count"`
	Preferred bool         `json:"preferred"` // upvoted or accepted
}
