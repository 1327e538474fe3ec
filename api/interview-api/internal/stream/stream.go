// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	internal_type "github.com/preporbit/voice-api/api/interview-api/internal/type"
	"github.com/preporbit/voice-api/pkg/commons"
	"github.com/preporbit/voice-api/pkg/utils"
)

// EventHandler receives every classified event read off the voice stream.
type EventHandler func(internal_type.Event)

// Stream is the websocket ingress from the voice-call service. It reads
// JSON frames, classifies them and hands them to the session controller.
// The stream does not interpret events beyond classification; a hangup
// observed at the socket level is surfaced as a synthesized call-end or
// error event so the controller sees a uniform stream.
type Stream struct {
	logger  commons.Logger
	url     string
	handler EventHandler
}

func NewStream(logger commons.Logger, url string, handler EventHandler) *Stream {
	return &Stream{logger: logger, url: url, handler: handler}
}

// Run dials the voice service and pumps events until the socket closes or
// the context is cancelled. It returns nil on a clean close.
func (s *Stream) Run(ctx context.Context, interviewID string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("%s?interviewId=%s", s.url, interviewID), nil)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", s.url, err)
	}

	// unblock ReadMessage when the caller gives up; the watcher dies with Run
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	utils.Go(watchCtx, func(goCtx context.Context) {
		<-goCtx.Done()
		conn.Close()
	})

	s.logger.Infof("stream: connected for interview %s", interviewID)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return s.classifyClose(ctx, err)
		}
		s.dispatch(data)
	}
}

// dispatch decodes one frame and forwards it. Frames that are not JSON
// objects still flow through as unknown events; the normalizer decides
// whether they carry text.
func (s *Stream) dispatch(data []byte) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Debugf("stream: dropping non-JSON frame: %v", err)
		return
	}
	s.handler(internal_type.ParseEvent(raw, time.Now()))
}

// classifyClose maps the socket's closing error onto the event surface. A
// normal closure or a provider hangup becomes call-end; anything else is an
// error event with the close text as payload.
func (s *Stream) classifyClose(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.handler(internal_type.Event{Kind: internal_type.EventCallEnd, Timestamp: time.Now()})
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Infof("stream: closed normally")
		s.handler(internal_type.Event{Kind: internal_type.EventCallEnd, Timestamp: time.Now()})
		return nil
	}

	s.logger.Warnf("stream: closed abnormally: %v", err)
	s.handler(internal_type.Event{
		Kind:      internal_type.EventError,
		Payload:   map[string]interface{}{"message": err.Error()},
		Timestamp: time.Now(),
	})
	return err
}
