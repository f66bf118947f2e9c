package model

// UpdateResult is returned by query.updateOne and query.updateMany.
type UpdateResult struct {
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
	UpsertedCount int64 `json:"upsertedCount"`
}

// DeleteResult is returned by query.deleteOne and query.deleteMany.
type DeleteResult struct {
	DeletedCount int64 `json:"deletedCount"`
}
