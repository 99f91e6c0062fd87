package tomsg

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/lieuwex/tomsg-go/internal/mlog"
)

// fakeServer accepts exactly one connection and lets the test script
// lines back and forth over it, in the spirit of the reference corpus's
// own DummyServer test harness for line-oriented protocols.
type fakeServer struct {
	ln   net.Listener
	conn net.Conn
	r    *bufio.Scanner
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	return &fakeServer{ln: ln}
}

func (f *fakeServer) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeServer) accept(t *testing.T) {
	t.Helper()
	conn, err := f.ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	f.conn = conn
	f.r = bufio.NewScanner(conn)
}

func (f *fakeServer) expectLine(t *testing.T) string {
	t.Helper()
	if !f.r.Scan() {
		t.Fatalf("expected a line, got error: %v", f.r.Err())
	}
	return f.r.Text()
}

func (f *fakeServer) send(t *testing.T, line string) {
	t.Helper()
	if _, err := f.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (f *fakeServer) close() {
	if f.conn != nil {
		f.conn.Close()
	}
	f.ln.Close()
}

func connectHandshake(t *testing.T, srv *fakeServer) (*Connection, <-chan PushMessage) {
	t.Helper()

	done := make(chan struct{})
	var conn *Connection
	var pushCh <-chan PushMessage
	var connectErr error

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		conn, pushCh, connectErr = DialTCP(ctx, srv.addr(), DialOptions{})
	}()

	srv.accept(t)
	line := srv.expectLine(t)
	if line != "0 version 4" {
		t.Fatalf("handshake line = %q, want %q", line, "0 version 4")
	}
	srv.send(t, "0 ok")

	<-done
	if connectErr != nil {
		t.Fatalf("Connect: %v", connectErr)
	}
	return conn, pushCh
}

func TestConnectPingRoundTrip(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	conn, _ := connectHandshake(t, srv)

	replyCh := make(chan Reply, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := conn.SendCommand(context.Background(), CommandPing())
		replyCh <- r
		errCh <- err
	}()

	line := srv.expectLine(t)
	if line != "1 ping" {
		t.Fatalf("line = %q, want %q", line, "1 ping")
	}
	srv.send(t, "1 pong")

	if err := <-errCh; err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if reply := <-replyCh; reply.Kind != ReplyPong {
		t.Fatalf("reply = %+v, want Pong", reply)
	}
}

func TestConnectConcurrentRegisterLogin(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	conn, _ := connectHandshake(t, srv)

	username := mustWord(t, "a")
	password := mustLine(t, "b")

	type result struct {
		reply Reply
		err   error
	}
	registerCh := make(chan result, 1)
	loginCh := make(chan result, 1)

	go func() {
		r, err := conn.SendCommand(context.Background(), CommandRegister(username, password))
		registerCh <- result{r, err}
	}()
	go func() {
		r, err := conn.SendCommand(context.Background(), CommandLogin(username, password))
		loginCh <- result{r, err}
	}()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		line := srv.expectLine(t)
		seen[line] = true
	}
	if !seen["1 register a b"] || !seen["2 login a b"] {
		t.Fatalf("unexpected wire lines: %v", seen)
	}

	// Reply in the opposite order the commands were issued; routing is by
	// tag, not by submission order.
	srv.send(t, "2 ok")
	srv.send(t, "1 ok")

	rReg := <-registerCh
	rLog := <-loginCh
	if rReg.err != nil || rReg.reply.Kind != ReplyOk {
		t.Fatalf("register result = %+v", rReg)
	}
	if rLog.err != nil || rLog.reply.Kind != ReplyOk {
		t.Fatalf("login result = %+v", rLog)
	}
}

func TestConnectEmptyHistory(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	conn, _ := connectHandshake(t, srv)

	room := mustWord(t, "r")
	replyCh := make(chan Reply, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := conn.SendCommand(context.Background(), CommandHistory(room, 5))
		replyCh <- r
		errCh <- err
	}()

	line := srv.expectLine(t)
	if line != "1 history r 5" {
		t.Fatalf("line = %q", line)
	}
	srv.send(t, "1 history 0")

	if err := <-errCh; err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	reply := <-replyCh
	if reply.Kind != ReplyHistory || len(reply.History) != 0 {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestConnectTwoElementHistory(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	conn, _ := connectHandshake(t, srv)

	room := mustWord(t, "r")
	replyCh := make(chan Reply, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := conn.SendCommand(context.Background(), CommandHistory(room, 2))
		replyCh <- r
		errCh <- err
	}()

	_ = srv.expectLine(t) // "1 history r 2"
	srv.send(t, "1 history 2")
	srv.send(t, "1 history_message 0 r u 1700000000000000 10 -1 hello")
	srv.send(t, "1 history_message 1 r u 1700000000000001 11 10 world")

	if err := <-errCh; err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	reply := <-replyCh
	if reply.Kind != ReplyHistory || len(reply.History) != 2 {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.History[0].ID.Int64() != 10 || reply.History[0].ReplyOn != nil {
		t.Fatalf("history[0] = %+v", reply.History[0])
	}
	if reply.History[1].ID.Int64() != 11 || reply.History[1].ReplyOn == nil || reply.History[1].ReplyOn.Int64() != 10 {
		t.Fatalf("history[1] = %+v", reply.History[1])
	}
}

func TestConnectPushWhileAwaiting(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	conn, pushCh := connectHandshake(t, srv)

	replyCh := make(chan Reply, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := conn.SendCommand(context.Background(), CommandPing())
		replyCh <- r
		errCh <- err
	}()

	_ = srv.expectLine(t) // "1 ping"
	srv.send(t, "_push online 2 alice")
	srv.send(t, "_push ping")
	srv.send(t, "1 pong")

	push := <-pushCh
	if push.Kind != PushOnline || push.Sessions != 2 || push.Username != "alice" {
		t.Fatalf("push = %+v", push)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if reply := <-replyCh; reply.Kind != ReplyPong {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestConnectCloseWithPending(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	conn, pushCh := connectHandshake(t, srv)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand(context.Background(), CommandListRooms())
		errCh <- err
	}()

	_ = srv.expectLine(t) // "1 list_rooms"
	srv.conn.Close()

	err := <-errCh
	reason, ok := err.(CloseReason)
	if !ok || !reason.EOF {
		t.Fatalf("SendCommand err = %v, want EOF CloseReason", err)
	}

	if !conn.IsClosed() {
		t.Fatalf("IsClosed() = false after EOF")
	}

	if _, open := <-pushCh; open {
		t.Fatalf("push channel should be closed after EOF")
	}
}

func TestSendCommandRemembersCredentialsOnLogin(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	conn, _ := connectHandshake(t, srv)

	username := mustWord(t, "alice")
	password := mustLine(t, "hunter2")

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand(context.Background(), CommandLogin(username, password))
		errCh <- err
	}()
	_ = srv.expectLine(t) // "1 login alice hunter2"
	srv.send(t, "1 ok")
	if err := <-errCh; err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	if conn.creds.LikelyStale("alice", "hunter2") {
		t.Fatalf("LikelyStale should be false for the password that was just accepted")
	}
	if !conn.creds.LikelyStale("alice", "wrong") {
		t.Fatalf("LikelyStale should be true for a different password")
	}

	// A second Login attempt with a password that's already known to be
	// wrong logs a warning before the command is even sent.
	var buf bytes.Buffer
	mlog.AddLogger("test", &buf, mlog.WARN)
	defer mlog.DelLogger("test")

	go func() {
		_, _ = conn.SendCommand(context.Background(), CommandLogin(username, mustLine(t, "wrong")))
	}()
	_ = srv.expectLine(t) // "2 login alice wrong"
	srv.send(t, "2 error invalid credentials")

	if buf.Len() == 0 {
		t.Fatalf("expected a warning to be logged for the likely-stale login attempt")
	}
}

func TestSendCommandContextCancel(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()

	conn, _ := connectHandshake(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand(ctx, CommandPing())
		errCh <- err
	}()

	_ = srv.expectLine(t) // "1 ping"
	cancel()

	err := <-errCh
	if err != context.Canceled {
		t.Fatalf("SendCommand err = %v, want context.Canceled", err)
	}

	// A late reply for the canceled call must not panic when resolved
	// and discarded.
	srv.send(t, "1 pong")
	time.Sleep(50 * time.Millisecond)
}
