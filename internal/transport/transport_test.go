package transport_test

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messagenet/evodispatch/internal/evoerr"
	"github.com/messagenet/evodispatch/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendWritesWellFormedRequestAndReturnsResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var gotRequest string
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		line, _ := reader.ReadString('\n')
		gotRequest += line
		for {
			l, err := reader.ReadString('\n')
			gotRequest += l
			if err != nil || l == "\r\n" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\nok"))
	}()

	tr := transport.New(testLogger())
	result, err := tr.Send(context.Background(), ln.Addr().String(), []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Contains(t, string(result.Body), "ok")

	<-done
	assert.True(t, strings.HasPrefix(gotRequest, "POST / HTTP/1.1\r\n"))
	assert.Contains(t, gotRequest, "User-Agent: MessageNet Evolution Banner Socket\r\n")
	assert.Contains(t, gotRequest, "Content-Length: 7\r\n")
}

func TestSendReturnsConnectFailedWhenNothingListens(t *testing.T) {
	tr := transport.New(testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := tr.Send(ctx, "127.0.0.1:1", []byte("{}"))
	assert.ErrorIs(t, err, evoerr.ErrConnectFailed)
}

func TestPingBuildsGETWithPassword(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var gotRequest string
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		line, _ := reader.ReadString('\n')
		gotRequest = line
		conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
	}()

	tr := transport.New(testLogger())
	_, err = tr.Ping(context.Background(), ln.Addr().String(), "secret")
	require.NoError(t, err)

	<-done
	assert.Equal(t, "GET /ping?password=secret HTTP/1.1\r\n", gotRequest)
}
