package server_test

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wachikun/yaskkserv2/internal/codec"
	"github.com/wachikun/yaskkserv2/internal/container"
	"github.com/wachikun/yaskkserv2/internal/dictbuild"
	"github.com/wachikun/yaskkserv2/internal/dictindex"
	"github.com/wachikun/yaskkserv2/internal/lookup"
	"github.com/wachikun/yaskkserv2/internal/server"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jisyo")
	require.NoError(t, os.WriteFile(src, []byte("abc /X/Y/\n"), 0o644))

	out := filepath.Join(dir, "out.dict")
	require.NoError(t, dictbuild.Build(dictbuild.Config{
		SourcePaths:    []string{src},
		OutputPath:     out,
		OutputEncoding: container.EncodingUtf8,
		Codec:          codec.New(&codec.Table{}),
		CodecTable:     []byte("table"),
	}))

	db, err := container.OpenFile(out)
	require.NoError(t, err)
	idx, err := dictindex.Build(db)
	require.NoError(t, err)

	engine := lookup.NewEngine(db, idx, nil, nil, nil, lookup.GoogleTimingDisabled, 64)

	srv, err := server.New(server.Config{
		ListenAddress:  "127.0.0.1",
		Port:           0,
		MaxConnections: 4,
		Version:        "test-version",
		HostnameAndIP:  "testhost:127.0.0.1",
	}, engine)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()

	return srv.Addr().String(), func() {
		cancel()
		<-done
		engine.Close()
		db.Close()
	}
}

func TestServerLookupHit(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("1abc \n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "1/X/Y/\n", line)
}

func TestServerLookupMiss(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("1zzz \n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "4zzz \n", line)
}

func TestServerVersion(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("2"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "test-version ", string(buf[:n]))
}

func TestServerDisconnect(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("0"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, _ := conn.Read(buf)
	require.Equal(t, 0, n)
}
