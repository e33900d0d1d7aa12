package feed

import (
	"encoding/json"
	"fmt"
)

// EncodeRecord serializes a raw record for snapshot storage. Decoding the
// result with DecodeRecord yields the same record.
func EncodeRecord(record RawArticle) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func DecodeRecord(data []byte) (RawArticle, error) {
	var record RawArticle
	if err := json.Unmarshal(data, &record); err != nil {
		return RawArticle{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return record, nil
}
