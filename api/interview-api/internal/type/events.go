// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_type

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// =============================================================================
// Voice-service event surface
// =============================================================================

// EventKind is the closed set of event shapes recognized from the voice-call
// service. Everything else is EventUnknown and carries its payload untouched
// to the normalizer, which is the only component allowed to dig into it.
type EventKind string

const (
	EventCallStart          EventKind = "call-start"
	EventCallEnd            EventKind = "call-end"
	EventError              EventKind = "error"
	EventMessage            EventKind = "message"
	EventSpeechStart        EventKind = "speech-start"
	EventSpeechEnd          EventKind = "speech-end"
	EventTranscriptPartial  EventKind = "transcript.partial"
	EventTranscriptFinal    EventKind = "transcript.final"
	EventConversationUpdate EventKind = "conversation.update"
	EventUnknown            EventKind = "unknown"
)

// Role identifies which side of the call produced an utterance.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Event is a recognized voice-service event. Payload keeps the raw untyped
// data; it never crosses past the normalizer boundary.
type Event struct {
	Kind      EventKind
	Role      Role
	Payload   interface{}
	Timestamp time.Time
}

// eventEnvelope is the loosely-typed header most providers put on their
// event frames.
type eventEnvelope struct {
	Type           string `json:"type"`
	TranscriptType string `json:"transcriptType"`
	Role           string `json:"role"`
}

// ParseEvent classifies a raw event payload into an Event. Classification is
// best effort: malformed frames come back as EventUnknown rather than an
// error, matching the tolerance required at this boundary.
func ParseEvent(raw interface{}, now time.Time) Event {
	ev := Event{Kind: EventUnknown, Role: RoleAssistant, Payload: raw, Timestamp: now}

	var env eventEnvelope
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &env,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return ev
	}
	if err := decoder.Decode(raw); err != nil {
		return ev
	}

	if strings.EqualFold(env.Role, string(RoleUser)) {
		ev.Role = RoleUser
	}

	switch strings.ToLower(env.Type) {
	case "call-start", "call_start":
		ev.Kind = EventCallStart
	case "call-end", "call_end", "call-ended":
		ev.Kind = EventCallEnd
	case "error":
		ev.Kind = EventError
	case "message":
		ev.Kind = EventMessage
	case "speech-start", "speech_start":
		ev.Kind = EventSpeechStart
	case "speech-end", "speech_end":
		ev.Kind = EventSpeechEnd
	case "conversation-update", "conversation.update":
		ev.Kind = EventConversationUpdate
	case "transcript", "transcript.partial", "transcript.final":
		if strings.EqualFold(env.TranscriptType, "final") ||
			strings.EqualFold(env.Type, "transcript.final") {
			ev.Kind = EventTranscriptFinal
		} else {
			ev.Kind = EventTranscriptPartial
		}
	}
	return ev
}

// IsPartialFlavored reports whether the event should feed the reconciler's
// partial buffer rather than the committed transcript.
func (e Event) IsPartialFlavored() bool {
	return e.Kind == EventTranscriptPartial || e.Kind == EventConversationUpdate
}

// IsFinalFlavored reports whether the event carries a confirmed utterance.
func (e Event) IsFinalFlavored() bool {
	return e.Kind == EventTranscriptFinal || e.Kind == EventMessage
}
