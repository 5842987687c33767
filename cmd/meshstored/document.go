package main

import (
	"encoding/json"
	"fmt"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/value"
)

// Document is the sample record type the host stores, indexes, and
// queries: representative of a typical meshstore tenant record rather
// than anything the core itself is specific to.
type Document struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Status   string  `json:"status"`
	Score    float64 `json:"score"`
}

func documentKeyString(key string) string { return key }

// documentValueString stringifies a Document for Merkle entry hashing;
// it only has to be deterministic and identical across replicas, not
// human-readable, so plain JSON marshaling (struct field order is fixed)
// is sufficient.
func documentValueString(d Document) string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%+v", d)
	}
	return string(b)
}

func documentExtractors() map[string]attribute.Extractor[Document] {
	return map[string]attribute.Extractor[Document]{
		"category": attribute.Simple("category", func(d Document) (value.Value, bool) {
			return value.Text(d.Category), true
		}),
		"status": attribute.Simple("status", func(d Document) (value.Value, bool) {
			return value.Text(d.Status), true
		}),
		"score": attribute.Simple("score", func(d Document) (value.Value, bool) {
			return value.Float(d.Score), true
		}),
	}
}
