package editlog

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/pixelwall/internal/domain"
)

// EncodeBatch serializes records as one JSON array, the payload of a single log row.
func EncodeBatch(records []domain.EditRecord) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode edit batch: %w", err)
	}
	return string(data), nil
}

// DecodeBatch is the inverse of EncodeBatch.
func DecodeBatch(data string) ([]domain.EditRecord, error) {
	var records []domain.EditRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("failed to decode edit batch: %w", err)
	}
	return records, nil
}
