// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRawString(t *testing.T) {
	assert.Equal(t, "hello there", Normalize("  hello there  "))
}

func TestNormalizeTextField(t *testing.T) {
	payload := map[string]interface{}{"text": " the answer ", "content": "ignored"}
	assert.Equal(t, "the answer", Normalize(payload))
}

func TestNormalizeContentString(t *testing.T) {
	payload := map[string]interface{}{"content": "a full sentence"}
	assert.Equal(t, "a full sentence", Normalize(payload))
}

func TestNormalizeContentArray(t *testing.T) {
	payload := map[string]interface{}{
		"content": []interface{}{
			"first chunk",
			map[string]interface{}{"text": "second chunk"},
			map[string]interface{}{"content": "third chunk"},
			map[string]interface{}{"irrelevant": true},
		},
	}
	assert.Equal(t, "first chunk second chunk third chunk", Normalize(payload))
}

func TestNormalizeFallbackScanLongest(t *testing.T) {
	payload := map[string]interface{}{
		"meta": map[string]interface{}{
			"message": "short",
		},
		"update": map[string]interface{}{
			"conversation": []interface{}{
				map[string]interface{}{
					"transcript": "the considerably longer transcript line",
				},
			},
		},
	}
	assert.Equal(t, "the considerably longer transcript line", Normalize(payload))
}

func TestNormalizeIgnoresNonTextishKeys(t *testing.T) {
	payload := map[string]interface{}{
		"id":     "evt_12345678901234567890",
		"status": "a-long-but-irrelevant-status-string",
	}
	assert.Equal(t, "", Normalize(payload))
}

func TestNormalizeEmptyPayloads(t *testing.T) {
	assert.Equal(t, "", Normalize(nil))
	assert.Equal(t, "", Normalize(42))
	assert.Equal(t, "", Normalize("   "))
	assert.Equal(t, "", Normalize(map[string]interface{}{}))
	assert.Equal(t, "", Normalize(map[string]interface{}{"text": "   "}))
}

func TestNormalizeDepthBound(t *testing.T) {
	deep := map[string]interface{}{"transcript": "too deep to find"}
	payload := map[string]interface{}{}
	cursor := payload
	for i := 0; i < maxDepth+2; i++ {
		next := map[string]interface{}{}
		cursor["nested"] = next
		cursor = next
	}
	cursor["leaf"] = deep

	assert.Equal(t, "", Normalize(payload))
}

func TestNormalizeCyclicPayload(t *testing.T) {
	payload := map[string]interface{}{"message": "stable text"}
	payload["self"] = payload

	assert.Equal(t, "stable text", Normalize(payload))
}

func TestNormalizeNoSideEffects(t *testing.T) {
	payload := map[string]interface{}{
		"wrapper": map[string]interface{}{"transcript": "untouched"},
	}
	Normalize(payload)
	Normalize(payload)

	assert.Equal(t, "untouched", Normalize(payload))
}
