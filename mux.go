package tomsg

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/lieuwex/tomsg-go/internal/mlog"
)

// replyOutcome is the payload carried over a pending slot's one-shot
// channel: exactly one of reply or err is meaningful. A Go channel of
// capacity 1 plays the role the spec calls a "one-shot completion slot" --
// there's no send-once primitive in the standard library, and a
// buffered-by-one channel is the idiomatic stand-in (the same choice the
// reference corpus's own tag-routed multiplexer makes for per-session
// delivery channels).
type replyOutcome struct {
	reply Reply
	err   error
}

type pendingSlot chan replyOutcome

// historyState tracks the single in-flight history reassembly the spec
// allows at most one of at a time.
type historyState struct {
	tag      Word
	expected int64
	buffer   []Message
}

// mux is the connection core: tag allocation, the pending-reply table,
// history reassembly, and close-reason fanout. All mutable state lives
// behind mu; critical sections never perform I/O, per spec §5.
type mux struct {
	mu         sync.Mutex
	tagCounter uint64
	pending    map[Word]pendingSlot
	history    *historyState
	push       chan PushMessage
	closed     *CloseReason
}

func newMux(pushBufferSize int) *mux {
	if pushBufferSize <= 0 {
		pushBufferSize = 20
	}
	return &mux{
		pending: make(map[Word]pendingSlot),
		push:    make(chan PushMessage, pushBufferSize),
	}
}

// closeReasonSnapshot returns a snapshot of the close reason, if any.
func (m *mux) closeReasonSnapshot() (CloseReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed == nil {
		return CloseReason{}, false
	}
	return *m.closed, true
}

// allocate mints a fresh tag and installs a pending slot for it, unless
// the connection is already closed, in which case it reports the
// existing close reason instead so callers fail promptly rather than
// blocking forever. It fails loudly (panics) if the wrapped counter
// somehow collides with a still-pending tag, per spec §4.4's invariants
// and the reference implementation's own send_message_with_tag behavior.
//
// The counter is read before it's incremented, so the very first tag
// ever allocated on a connection is "0" -- matching
// original_source/src/connection/connection.rs's send_message, which
// reads tag_counter (initialized to 0) and only bumps it afterward.
func (m *mux) allocate() (Word, pendingSlot, *CloseReason) {
	m.mu.Lock()

	if m.closed != nil {
		reason := *m.closed
		m.mu.Unlock()
		return "", nil, &reason
	}

	tag := wordUnchecked(strconv.FormatUint(m.tagCounter, 10))
	m.tagCounter++
	if _, exists := m.pending[tag]; exists {
		m.mu.Unlock()
		panic(fmt.Sprintf("tomsg: tag %q already pending after counter wraparound", tag))
	}

	slot := make(pendingSlot, 1)
	m.pending[tag] = slot
	m.mu.Unlock()

	mlog.Debug("tomsg: allocated tag %s", tag)

	return tag, slot, nil
}

// dispatchLine handles one already-LF-stripped wire line read by the
// reader loop. A returned error is always fatal to the connection.
func (m *mux) dispatchLine(line string) error {
	if isPushLine(line) {
		push, err := parsePush(line)
		if err != nil {
			return err
		}
		if push == nil {
			// "_push ping" -- silently discarded, per spec §4.3.
			return nil
		}

		// The push channel has bounded capacity; a slow consumer blocks
		// this send, which in turn blocks reply processing. That's the
		// deliberate backpressure coupling from spec §5, not a bug.
		m.push <- *push
		return nil
	}

	frag, err := parseReplyLine(line)
	if err != nil {
		return err
	}

	switch frag.kind {
	case fragmentComplete:
		m.resolve(frag.tag, replyOutcome{reply: frag.reply})
		return nil

	case fragmentHistoryInit:
		m.mu.Lock()
		if frag.historyCount == 0 {
			m.mu.Unlock()
			m.resolve(frag.tag, replyOutcome{reply: Reply{Kind: ReplyHistory, History: []Message{}}})
			return nil
		}
		if m.history != nil {
			m.mu.Unlock()
			return newProtocolError("history %d for tag %s arrived while another history is in progress", frag.historyCount, frag.tag)
		}
		m.history = &historyState{
			tag:      frag.tag,
			expected: frag.historyCount,
			buffer:   make([]Message, 0, frag.historyCount),
		}
		m.mu.Unlock()
		return nil

	case fragmentHistoryMessage:
		m.mu.Lock()
		if m.history == nil || m.history.tag != frag.tag {
			m.mu.Unlock()
			return newProtocolError("history_message for tag %s with no preceding history preamble", frag.tag)
		}
		if frag.historyIndex != int64(len(m.history.buffer)) {
			m.mu.Unlock()
			return newProtocolError("history_message index %d out of order for tag %s (expected %d)",
				frag.historyIndex, frag.tag, len(m.history.buffer))
		}

		m.history.buffer = append(m.history.buffer, frag.historyMsg)
		done := frag.historyIndex == m.history.expected-1
		var msgs []Message
		tag := m.history.tag
		if done {
			msgs = m.history.buffer
			m.history = nil
		}
		m.mu.Unlock()

		if done {
			m.resolve(tag, replyOutcome{reply: Reply{Kind: ReplyHistory, History: msgs}})
		}
		return nil

	default:
		return newProtocolError("unreachable fragment kind for tag %s", frag.tag)
	}
}

// resolve completes the pending slot for tag, if any is still
// outstanding. A reply for an unknown tag is ignored, per spec §4.4 --
// the server may legitimately answer a tag the client has already
// forgotten about after counter wraparound or a canceled caller.
func (m *mux) resolve(tag Word, outcome replyOutcome) {
	m.mu.Lock()
	slot, ok := m.pending[tag]
	if ok {
		delete(m.pending, tag)
	}
	m.mu.Unlock()

	if !ok {
		mlog.Debug("tomsg: reply for unknown tag %s ignored", tag)
		return
	}

	slot <- outcome
}

// closeWith records reason, closes the push channel, and fans reason out
// to every still-pending caller. It's idempotent: only the first call
// does anything.
func (m *mux) closeWith(reason CloseReason) {
	m.mu.Lock()
	if m.closed != nil {
		m.mu.Unlock()
		return
	}
	m.closed = &reason

	pending := m.pending
	m.pending = make(map[Word]pendingSlot)
	m.mu.Unlock()

	close(m.push)

	for tag, slot := range pending {
		slot <- replyOutcome{err: reason}
		mlog.Debug("tomsg: fanned out close reason to pending tag %s", tag)
	}
}

// readLoop owns r exclusively and runs until EOF or a read/protocol
// error, at which point it calls closeWith and returns. It's the sole
// background task a Connection spawns, per spec §5.
func (m *mux) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if err := m.dispatchLine(line); err != nil {
			mlog.Error("tomsg: closing connection after protocol error: %v", err)
			m.closeWith(closeReasonErr(err))
			return
		}
	}

	if err := scanner.Err(); err != nil {
		mlog.Error("tomsg: closing connection after read error: %v", err)
		m.closeWith(closeReasonErr(err))
		return
	}

	mlog.Debug("tomsg: closing connection after EOF")
	m.closeWith(closeReasonEOF())
}
