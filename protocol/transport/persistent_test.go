package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistentTransport_Advertisement(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var gotRequest []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 4)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		var length int
		fmt.Sscanf(string(buf), "%04x", &length)
		rest := make([]byte, length-4)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		gotRequest = append(buf, rest...)

		_, _ = conn.Write([]byte("003f# service=git-upload-pack\n0000"))
	}()

	repo := "git://" + ln.Addr().String() + "/project.git"
	tr, err := NewPersistentTransport(repo)
	require.NoError(t, err)

	conv, err := tr.Open(context.Background())
	require.NoError(t, err)
	defer conv.Close()

	rc, err := conv.Advertisement(context.Background(), ServiceUploadPack)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, _ := rc.Read(buf)
	<-done

	assert.Contains(t, string(gotRequest), "git-upload-pack /project.git")
	assert.Contains(t, string(gotRequest), "host=")
	assert.Contains(t, string(buf[:n]), "service=git-upload-pack")
	assert.False(t, conv.Stateless())
}

func TestNewPersistentTransport_RejectsNonGitScheme(t *testing.T) {
	t.Parallel()

	_, err := NewPersistentTransport("https://example.com/project.git")
	require.Error(t, err)
}
