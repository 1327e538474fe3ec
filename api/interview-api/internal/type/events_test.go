// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_type

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEventClassification(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		raw      interface{}
		expected EventKind
	}{
		{"call start", map[string]interface{}{"type": "call-start"}, EventCallStart},
		{"call start underscore", map[string]interface{}{"type": "call_start"}, EventCallStart},
		{"call end", map[string]interface{}{"type": "call-end"}, EventCallEnd},
		{"error", map[string]interface{}{"type": "error", "message": "boom"}, EventError},
		{"message", map[string]interface{}{"type": "message", "content": "hi"}, EventMessage},
		{"speech start", map[string]interface{}{"type": "speech-start"}, EventSpeechStart},
		{"conversation update", map[string]interface{}{"type": "conversation-update"}, EventConversationUpdate},
		{"partial transcript", map[string]interface{}{"type": "transcript", "transcriptType": "partial"}, EventTranscriptPartial},
		{"final transcript", map[string]interface{}{"type": "transcript", "transcriptType": "final"}, EventTranscriptFinal},
		{"typed final", map[string]interface{}{"type": "transcript.final"}, EventTranscriptFinal},
		{"unknown type", map[string]interface{}{"type": "whatever"}, EventUnknown},
		{"no type", map[string]interface{}{"content": "text only"}, EventUnknown},
		{"not an object", "bare string", EventUnknown},
		{"nil", nil, EventUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ParseEvent(tt.raw, now)
			assert.Equal(t, tt.expected, ev.Kind)
			assert.Equal(t, now, ev.Timestamp)
		})
	}
}

func TestParseEventRole(t *testing.T) {
	user := ParseEvent(map[string]interface{}{"type": "transcript", "role": "USER"}, time.Now())
	assert.Equal(t, RoleUser, user.Role)

	assistant := ParseEvent(map[string]interface{}{"type": "transcript", "role": "assistant"}, time.Now())
	assert.Equal(t, RoleAssistant, assistant.Role)

	missing := ParseEvent(map[string]interface{}{"type": "transcript"}, time.Now())
	assert.Equal(t, RoleAssistant, missing.Role)
}

func TestParseEventKeepsPayload(t *testing.T) {
	raw := map[string]interface{}{"type": "message", "content": "hello"}
	ev := ParseEvent(raw, time.Now())
	assert.Equal(t, raw, ev.Payload)
}

func TestEventFlavors(t *testing.T) {
	assert.True(t, Event{Kind: EventTranscriptPartial}.IsPartialFlavored())
	assert.True(t, Event{Kind: EventConversationUpdate}.IsPartialFlavored())
	assert.False(t, Event{Kind: EventTranscriptFinal}.IsPartialFlavored())

	assert.True(t, Event{Kind: EventTranscriptFinal}.IsFinalFlavored())
	assert.True(t, Event{Kind: EventMessage}.IsFinalFlavored())
	assert.False(t, Event{Kind: EventTranscriptPartial}.IsFinalFlavored())
}

func TestCallSessionDuration(t *testing.T) {
	start := time.Now()
	sess := NewCallSession("iv-1", "user-1", start)
	assert.Equal(t, StatusActive, sess.Status)
	assert.NotEmpty(t, sess.ID)

	assert.Equal(t, 30, sess.DurationSeconds(start.Add(30*time.Second)))

	ended := start.Add(45 * time.Second)
	sess.EndedAt = &ended
	assert.Equal(t, 45, sess.DurationSeconds(start.Add(time.Hour)))

	sess.EndedAt = nil
	assert.Equal(t, 0, sess.DurationSeconds(start.Add(-time.Second)))
}
