package ami

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeManager accepts one connection, answers the login and then writes
// script to the client.
func fakeManager(t *testing.T, loginResponse string, script string) (addr string, actions chan Event) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	actions = make(chan Event, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		fmt.Fprint(conn, "Asterisk Call Manager/1.3\r\n")
		p := NewParser(bufio.NewReader(conn))

		login, ok := p.Next()
		if !ok {
			return
		}
		actions <- login
		fmt.Fprintf(conn, "Response: %s\r\nActionID: %s\r\nMessage: ok\r\n\r\n", loginResponse, login.Get("ActionID"))
		fmt.Fprint(conn, script)

		for {
			a, ok := p.Next()
			if !ok {
				return
			}
			actions <- a
		}
	}()
	return ln.Addr().String(), actions
}

func TestClientSessionStreamsEvents(t *testing.T) {
	addr, actions := fakeManager(t, "Success",
		"Event: Bridge\r\nBridgestate: Link\r\nCallerID1: 101\r\nCallerID2: 79991234567\r\n\r\n")

	c := NewClient(ClientOptions{Addr: addr, Username: "admin", Secret: "s3cret"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- c.Session(ctx, func(e Event) { got <- e }) }()

	select {
	case login := <-actions:
		assert.Equal(t, "Login", login.Get("Action"))
		assert.Equal(t, "admin", login.Get("Username"))
		assert.Equal(t, "s3cret", login.Get("Secret"))
		assert.Equal(t, "on", login.Get("Events"))
		assert.True(t, strings.HasPrefix(login.Get("ActionID"), "login-"))
	case <-time.After(2 * time.Second):
		t.Fatal("no login received")
	}

	select {
	case evt := <-got:
		assert.Equal(t, "Bridge", evt.Type())
		assert.Equal(t, "Link", evt.Get("Bridgestate"))
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	require.NoError(t, c.Send(NewAction("Ping", "ActionID", "p1")))
	select {
	case a := <-actions:
		assert.Equal(t, "Ping", a.Get("Action"))
	case <-time.After(2 * time.Second):
		t.Fatal("action not written")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.ErrorIs(t, c.Send(NewAction("Ping")), ErrNotConnected)
}

func TestClientLoginRejected(t *testing.T) {
	addr, _ := fakeManager(t, "Error", "")

	c := NewClient(ClientOptions{Addr: addr, Username: "admin", Secret: "wrong"})
	err := c.Session(context.Background(), func(Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AMI login rejected")
}

func TestClientSendWithoutSession(t *testing.T) {
	c := NewClient(ClientOptions{Addr: "127.0.0.1:1"})
	assert.ErrorIs(t, c.Send(NewAction("Ping")), ErrNotConnected)
}

func TestClientRunStopsOnCancel(t *testing.T) {
	c := NewClient(ClientOptions{Addr: "127.0.0.1:1", ReconnectDelay: 10 * time.Millisecond, DialTimeout: 50 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, c.Run(ctx, func(Event) {}))
}
