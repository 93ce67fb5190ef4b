package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Stream is a lazy, finite, non-restartable sequence of decoded response
// messages from a server-streaming or bidirectional call. A background
// goroutine receives and decodes messages as they arrive and buffers up to
// eight of them ahead of Next, then waits until Next takes one; cancelling
// the stream's context or calling Close aborts the underlying RPC without
// draining it.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	method  string
	items   chan json.RawMessage
	errc    chan error
	closeMu sync.Mutex
	closed  bool
}

func newStream(ctx context.Context, logger *slog.Logger, method string) *Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	return &Stream{
		ctx:    streamCtx,
		cancel: cancel,
		logger: logger,
		method: method,
		items:  make(chan json.RawMessage, 8),
		errc:   make(chan error, 1),
	}
}

// emit delivers a decoded message to the stream, returning false if the
// stream's context ended first — the producing goroutine should stop.
func (s *Stream) emit(raw json.RawMessage) bool {
	select {
	case s.items <- raw:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Stream) fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

func (s *Stream) finish() {
	close(s.items)
}

// Next blocks until the next message is available, the stream ends, or
// ctx is cancelled. The returned bool is false when the stream is
// exhausted; the error is non-nil only on a genuine failure, never on
// clean end-of-stream.
func (s *Stream) Next(ctx context.Context) (json.RawMessage, error, bool) {
	select {
	case raw, ok := <-s.items:
		if !ok {
			select {
			case err := <-s.errc:
				return nil, err, false
			default:
				return nil, nil, false
			}
		}
		return raw, nil, true
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case <-s.ctx.Done():
		return nil, s.ctx.Err(), false
	}
}

// Close aborts the stream. Safe to call more than once, and safe to call
// without having drained Next to completion.
func (s *Stream) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.logger.Debug("stream closed", slog.String("method", s.method))
}
