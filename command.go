package tomsg

import (
	"fmt"
	"time"
)

// Command is a closed set of operations sendable to a tomsg server. Build
// one with the constructor functions below (CommandVersion, CommandSend,
// ...); the zero value is not a valid Command.
type Command struct {
	kind commandKind

	word1, word2 Word
	line1        Line
	id1          *ID
	count        int64
	timestamp    time.Time
	active       int64
}

type commandKind int

const (
	cmdVersion commandKind = iota
	cmdRegister
	cmdLogin
	cmdChangePassword
	cmdLogout
	cmdListRooms
	cmdListMembers
	cmdCreateRoom
	cmdLeaveRoom
	cmdInvite
	cmdSend
	cmdSendAt
	cmdHistory
	cmdHistoryBefore
	cmdGetMessage
	cmdPing
	cmdIsOnline
	cmdFirebaseToken
	cmdDeleteFirebaseToken
	cmdUserActive
)

func CommandVersion(version Word) Command {
	return Command{kind: cmdVersion, word1: version}
}

func CommandRegister(username Word, password Line) Command {
	return Command{kind: cmdRegister, word1: username, line1: password}
}

func CommandLogin(username Word, password Line) Command {
	return Command{kind: cmdLogin, word1: username, line1: password}
}

func CommandChangePassword(password Line) Command {
	return Command{kind: cmdChangePassword, line1: password}
}

func CommandLogout() Command {
	return Command{kind: cmdLogout}
}

func CommandListRooms() Command {
	return Command{kind: cmdListRooms}
}

func CommandListMembers(room Word) Command {
	return Command{kind: cmdListMembers, word1: room}
}

func CommandCreateRoom() Command {
	return Command{kind: cmdCreateRoom}
}

func CommandLeaveRoom(room Word) Command {
	return Command{kind: cmdLeaveRoom, word1: room}
}

func CommandInvite(room, username Word) Command {
	return Command{kind: cmdInvite, word1: room, word2: username}
}

func CommandSend(room Word, replyOn *ID, message Line) Command {
	return Command{kind: cmdSend, word1: room, id1: replyOn, line1: message}
}

func CommandSendAt(apiKey, room Word, replyOn *ID, at time.Time, message Line) Command {
	return Command{kind: cmdSendAt, word1: apiKey, word2: room, id1: replyOn, timestamp: at, line1: message}
}

func CommandHistory(room Word, count int64) Command {
	return Command{kind: cmdHistory, word1: room, count: count}
}

func CommandHistoryBefore(room Word, count int64, messageID ID) Command {
	id := messageID
	return Command{kind: cmdHistoryBefore, word1: room, count: count, id1: &id}
}

func CommandGetMessage(id ID) Command {
	v := id
	return Command{kind: cmdGetMessage, id1: &v}
}

func CommandPing() Command {
	return Command{kind: cmdPing}
}

func CommandIsOnline(username Word) Command {
	return Command{kind: cmdIsOnline, word1: username}
}

func CommandFirebaseToken(token Word) Command {
	return Command{kind: cmdFirebaseToken, word1: token}
}

func CommandDeleteFirebaseToken(token Word) Command {
	return Command{kind: cmdDeleteFirebaseToken, word1: token}
}

func CommandUserActive(active int64) Command {
	return Command{kind: cmdUserActive, active: active}
}

// encode renders cmd as its wire form, without a tag prefix and without a
// trailing newline; the multiplexer adds both.
func encode(cmd Command) string {
	switch cmd.kind {
	case cmdVersion:
		return fmt.Sprintf("version %s", cmd.word1)
	case cmdRegister:
		return fmt.Sprintf("register %s %s", cmd.word1, cmd.line1)
	case cmdLogin:
		return fmt.Sprintf("login %s %s", cmd.word1, cmd.line1)
	case cmdChangePassword:
		return fmt.Sprintf("change_password %s", cmd.line1)
	case cmdLogout:
		return "logout"
	case cmdListRooms:
		return "list_rooms"
	case cmdListMembers:
		return fmt.Sprintf("list_members %s", cmd.word1)
	case cmdCreateRoom:
		return "create_room"
	case cmdLeaveRoom:
		return fmt.Sprintf("leave_room %s", cmd.word1)
	case cmdInvite:
		return fmt.Sprintf("invite %s %s", cmd.word1, cmd.word2)
	case cmdSend:
		return fmt.Sprintf("send %s %s %s", cmd.word1, encodeReplyOn(cmd.id1), cmd.line1)
	case cmdSendAt:
		return fmt.Sprintf("sendat %s %s %s %d %s",
			cmd.word1, cmd.word2, encodeReplyOn(cmd.id1), timeToMicros(cmd.timestamp), cmd.line1)
	case cmdHistory:
		return fmt.Sprintf("history %s %d", cmd.word1, cmd.count)
	case cmdHistoryBefore:
		return fmt.Sprintf("history_before %s %d %s", cmd.word1, cmd.count, cmd.id1)
	case cmdGetMessage:
		return fmt.Sprintf("get_message %s", cmd.id1)
	case cmdPing:
		return "ping"
	case cmdIsOnline:
		return fmt.Sprintf("is_online %s", cmd.word1)
	case cmdFirebaseToken:
		return fmt.Sprintf("firebase_token %s", cmd.word1)
	case cmdDeleteFirebaseToken:
		return fmt.Sprintf("delete_firebase_token %s", cmd.word1)
	case cmdUserActive:
		return fmt.Sprintf("user_active %d", cmd.active)
	default:
		panic(fmt.Sprintf("tomsg: unreachable command kind %d", cmd.kind))
	}
}
