package audio

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rjboer/GoPulse/internal/wav"
)

type execCall struct {
	command string
	stdin   []byte
}

// startSSHServer accepts password auth and records every exec request with
// the bytes received on stdin.
func startSSHServer(t *testing.T, password string) (host string, port int, calls <-chan execCall) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	out := make(chan execCall, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, cfg, out)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, out
}

func serveSSH(conn net.Conn, cfg *ssh.ServerConfig, out chan<- execCall) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range chReqs {
				if req.Type != "exec" || len(req.Payload) < 4 {
					req.Reply(false, nil)
					continue
				}
				n := binary.BigEndian.Uint32(req.Payload[:4])
				command := string(req.Payload[4 : 4+n])
				req.Reply(true, nil)
				data, _ := io.ReadAll(ch)
				ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
				out <- execCall{command: command, stdin: data}
				return
			}
		}()
	}
}

func TestSSHSinkStreamsWAV(t *testing.T) {
	host, port, calls := startSSHServer(t, "secret")
	sink, err := NewSSHSink(SSHConfig{Host: host, Port: port, User: "pulse", Password: "secret"}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	samples := []float64{0, 0.25, -0.25, 0.5}
	buf, err := sink.NewBuffer(samples, 8000)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	if err := sink.Play(context.Background(), buf, sink.Now()); err != nil {
		t.Fatalf("play: %v", err)
	}

	select {
	case call := <-calls:
		if call.command != DefaultRemoteCommand {
			t.Fatalf("unexpected command %q", call.command)
		}
		got, rate, err := wav.Decode(call.stdin)
		if err != nil {
			t.Fatalf("decode streamed wav: %v", err)
		}
		if rate != 8000 || len(got) != len(samples) {
			t.Fatalf("unexpected stream: rate=%d samples=%d", rate, len(got))
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("remote command never ran")
	}
}

func TestSSHSinkDropsCancelledCycles(t *testing.T) {
	host, port, calls := startSSHServer(t, "secret")
	sink, err := NewSSHSink(SSHConfig{Host: host, Port: port, Password: "secret"}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	buf, _ := sink.NewBuffer([]float64{0.1}, 8000)
	ctx, cancel := context.WithCancel(context.Background())
	if err := sink.Play(ctx, buf, sink.Now()+time.Hour); err != nil {
		t.Fatalf("play: %v", err)
	}
	cancel()

	select {
	case call := <-calls:
		t.Fatalf("cancelled cycle reached the remote host: %q", call.command)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSSHSinkRejectsBadPassword(t *testing.T) {
	host, port, _ := startSSHServer(t, "secret")
	sink, err := NewSSHSink(SSHConfig{Host: host, Port: port, Password: "wrong", DialAttempts: 1}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Connect(context.Background()); err == nil {
		t.Fatalf("expected authentication failure")
	}
}

func TestSSHSinkPlayDoesNotBlockOnDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	sink, err := NewSSHSink(SSHConfig{Host: addr.IP.String(), Port: addr.Port, Password: "secret", DialAttempts: 5}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	buf, _ := sink.NewBuffer([]float64{0}, 8000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	begin := time.Now()
	if err := sink.Play(ctx, buf, sink.Now()+time.Second); err != nil {
		t.Fatalf("play: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 50*time.Millisecond {
		t.Fatalf("play blocked for %v", elapsed)
	}
}

func TestSSHSinkConnectReusesClient(t *testing.T) {
	host, port, calls := startSSHServer(t, "secret")
	sink, err := NewSSHSink(SSHConfig{Host: host, Port: port, Password: "secret"}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	if err := sink.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	first := sink.client
	buf, _ := sink.NewBuffer([]float64{0.5}, 8000)
	if err := sink.Play(context.Background(), buf, sink.Now()); err != nil {
		t.Fatalf("play: %v", err)
	}
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatalf("remote command never ran")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.client != first {
		t.Fatalf("expected the connected client to be reused")
	}
}

func TestNewSSHSinkDefaults(t *testing.T) {
	if _, err := NewSSHSink(SSHConfig{}, nil); err == nil {
		t.Fatalf("expected error without host")
	}
	sink, err := NewSSHSink(SSHConfig{Host: "radio.local"}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if sink.cfg.User != "root" || sink.cfg.Port != 22 || sink.cfg.Command != DefaultRemoteCommand || sink.cfg.DialAttempts != 3 {
		t.Fatalf("unexpected defaults: %+v", sink.cfg)
	}
	if _, err := sink.clientConfig(); err == nil {
		t.Fatalf("expected error without credentials")
	}
}
