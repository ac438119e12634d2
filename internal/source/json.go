package source

import (
	"encoding/json"
	"fmt"
)

// ParseAPIBooks decodes a mirror metadata API payload. The endpoint returns
// either a bare array of books or an object wrapping one.
func ParseAPIBooks(body []byte) ([]Record, error) {
	var books []APIBook
	if err := json.Unmarshal(body, &books); err != nil {
		// Some mirrors wrap the array in {"results": [...]}.
		var wrapped struct {
			Results []APIBook `json:"results"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to decode api payload: %w", err)
		}
		books = wrapped.Results
	}

	records := make([]Record, 0, len(books))
	for i := range books {
		b := books[i]
		records = append(records, Record{Kind: KindAPIBook, APIBook: &b})
	}

	return records, nil
}
