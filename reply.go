package tomsg

import (
	"strconv"
	"strings"

	"github.com/lieuwex/tomsg-go/internal/mlog"
)

// ReplyKind discriminates the variants of Reply.
type ReplyKind int

const (
	ReplyOk ReplyKind = iota
	ReplyNumber
	ReplyError
	ReplyName
	ReplyList
	ReplyPong
	ReplyHistory
	ReplyMessage
)

// Reply is the tagged union of everything a completed, routed reply can
// carry. Only the field matching Kind is populated.
type Reply struct {
	Kind ReplyKind

	Number  int64
	Err     Line
	Name    Word
	List    []Word
	History []Message
	Message Message
}

// replyFragment is the internal, not-yet-routed result of parsing one
// wire line that belongs to the reply stream (as opposed to a push
// line). For "history" and "history_message" it's a partial fragment the
// multiplexer must reassemble; for everything else it's already complete.
type replyFragment struct {
	tag Word

	// kind selects which of the fields below are meaningful: reply for
	// fragmentComplete, historyCount for fragmentHistoryInit, and
	// historyIndex plus historyMsg for fragmentHistoryMessage
	kind          fragmentKind
	reply         Reply
	historyCount  int64
	historyIndex  int64
	historyMsg    Message
}

type fragmentKind int

const (
	fragmentComplete fragmentKind = iota
	fragmentHistoryInit
	fragmentHistoryMessage
)

// splitLine splits s on single ASCII spaces, preserving empty tokens --
// the wire grammar never collapses runs of spaces.
func splitLine(s string) []string {
	return strings.Split(s, " ")
}

func parseI64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// parseReplyLine parses one wire line already known not to be a push
// line (i.e. its first token isn't "_push") into a replyFragment.
func parseReplyLine(line string) (replyFragment, error) {
	tokens := splitLine(line)
	if len(tokens) < 2 {
		return replyFragment{}, newProtocolError("reply line too short: %q", line)
	}

	tag := wordUnchecked(tokens[0])
	kind := tokens[1]
	rest := tokens[2:]

	switch kind {
	case "ok":
		return replyFragment{tag: tag, reply: Reply{Kind: ReplyOk}}, nil
	case "pong":
		return replyFragment{tag: tag, reply: Reply{Kind: ReplyPong}}, nil
	case "number":
		if len(rest) < 1 {
			return replyFragment{}, newProtocolError("number reply missing argument: %q", line)
		}
		n, err := parseI64(rest[0])
		if err != nil {
			return replyFragment{}, newProtocolError("number reply has invalid argument: %q", line)
		}
		return replyFragment{tag: tag, reply: Reply{Kind: ReplyNumber, Number: n}}, nil
	case "error":
		return replyFragment{tag: tag, reply: Reply{Kind: ReplyError, Err: lineUnchecked(strings.Join(rest, " "))}}, nil
	case "name":
		if len(rest) < 1 {
			return replyFragment{}, newProtocolError("name reply missing argument: %q", line)
		}
		return replyFragment{tag: tag, reply: Reply{Kind: ReplyName, Name: wordUnchecked(rest[0])}}, nil
	case "list":
		// rest[0] is the declared count; a mismatch against the words
		// actually present is logged as a non-fatal warning rather than
		// rejected, per spec §9 (ii).
		if len(rest) < 1 {
			return replyFragment{}, newProtocolError("list reply missing count: %q", line)
		}
		names := rest[1:]
		if count, err := parseI64(rest[0]); err != nil {
			mlog.Warn("tomsg: list reply has non-numeric count %q: %q", rest[0], line)
		} else if count != int64(len(names)) {
			mlog.Warn("tomsg: list reply declared count %d but carries %d names: %q", count, len(names), line)
		}
		words := make([]Word, 0, len(names))
		for _, w := range names {
			words = append(words, wordUnchecked(w))
		}
		return replyFragment{tag: tag, reply: Reply{Kind: ReplyList, List: words}}, nil
	case "message":
		msg, err := parseMessageTokens(rest)
		if err != nil {
			return replyFragment{}, err
		}
		return replyFragment{tag: tag, reply: Reply{Kind: ReplyMessage, Message: msg}}, nil
	case "history":
		if len(rest) < 1 {
			return replyFragment{}, newProtocolError("history reply missing count: %q", line)
		}
		count, err := parseI64(rest[0])
		if err != nil {
			return replyFragment{}, newProtocolError("history reply has invalid count: %q", line)
		}
		return replyFragment{tag: tag, kind: fragmentHistoryInit, historyCount: count}, nil
	case "history_message":
		if len(rest) < 1 {
			return replyFragment{}, newProtocolError("history_message missing index: %q", line)
		}
		index, err := parseI64(rest[0])
		if err != nil {
			return replyFragment{}, newProtocolError("history_message has invalid index: %q", line)
		}
		msg, err := parseMessageTokens(rest[1:])
		if err != nil {
			return replyFragment{}, err
		}
		return replyFragment{tag: tag, kind: fragmentHistoryMessage, historyIndex: index, historyMsg: msg}, nil
	default:
		return replyFragment{}, newProtocolError("unknown reply kind %q: %q", kind, line)
	}
}

// parseMessageTokens parses the common "<room> <user> <timestamp_us> <id>
// <reply_on|-1> <body...>" tail shared by "message" replies,
// "history_message" fragments, and "_push message" frames.
func parseMessageTokens(tokens []string) (Message, error) {
	if len(tokens) < 5 {
		return Message{}, newProtocolError("message fragment too short: %v", tokens)
	}

	room := wordUnchecked(tokens[0])
	user := wordUnchecked(tokens[1])

	micros, err := parseI64(tokens[2])
	if err != nil {
		return Message{}, newProtocolError("message has invalid timestamp: %q", tokens[2])
	}

	id, err := parseI64(tokens[3])
	if err != nil {
		return Message{}, newProtocolError("message has invalid id: %q", tokens[3])
	}

	replyOnRaw, err := parseI64(tokens[4])
	if err != nil {
		return Message{}, newProtocolError("message has invalid reply_on: %q", tokens[4])
	}

	var replyOn *ID
	if replyOnRaw != -1 {
		v := idUnchecked(replyOnRaw)
		replyOn = &v
	}

	return Message{
		ID:        idUnchecked(id),
		ReplyOn:   replyOn,
		RoomName:  room,
		UserName:  user,
		Timestamp: microsToTime(micros),
		Body:      lineUnchecked(strings.Join(tokens[5:], " ")),
	}, nil
}
