package storage

import (
	"encoding/json"
	"fmt"
	"sort"
)

// encodeValue serializes a timestamp list as a JSON array.
func encodeValue(value []int64) (string, error) {
	if value == nil {
		value = []int64{}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(data), nil
}

// decodeValue parses a JSON array of timestamps.
func decodeValue(data string) ([]int64, error) {
	if data == "" {
		return []int64{}, nil
	}
	var value []int64
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	if value == nil {
		value = []int64{}
	}
	return value, nil
}

func cloneValue(value []int64) []int64 {
	out := make([]int64, len(value))
	copy(out, value)
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
}
