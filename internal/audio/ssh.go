package audio

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/crypto/ssh"

	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/scheduler"
	"github.com/rjboer/GoPulse/internal/wav"
)

// DefaultRemoteCommand reads a WAV stream from stdin on the remote host.
const DefaultRemoteCommand = "aplay -q -"

// SSHConfig describes the remote host that plays the bursts.
type SSHConfig struct {
	Host     string
	User     string
	Password string
	KeyPath  string
	Port     int
	// Command receives the WAV bytes on stdin.
	Command string
	// DialAttempts bounds connection retries; zero means 3.
	DialAttempts int
}

// SSHSink plays bursts on a remote host by piping each cycle as a WAV file
// into a player command over SSH. Anchors are honoured on the local clock.
type SSHSink struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	cfg    SSHConfig
	client *ssh.Client
	clock  monotonic
	logger logging.Logger
}

// NewSSHSink validates configuration and prepares a sink. Call Connect before
// starting a session; otherwise the first queued burst opens the connection.
func NewSSHSink(cfg SSHConfig, logger logging.Logger) (*SSHSink, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required for the remote sink")
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = DefaultRemoteCommand
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SSHSink{
		cfg:    cfg,
		clock:  newMonotonic(),
		logger: logger.With(logging.Field{Key: "subsystem", Value: "ssh"}, logging.Field{Key: "host", Value: cfg.Host}),
	}, nil
}

func (s *SSHSink) Now() time.Duration { return s.clock.Now() }

// sshBuffer carries the pre-encoded WAV so every cycle sends identical bytes.
type sshBuffer struct {
	*PCMBuffer
	encoded []byte
}

func (s *SSHSink) NewBuffer(samples []float64, sampleRate int) (scheduler.Buffer, error) {
	pcm, err := newPCMBuffer(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return &sshBuffer{PCMBuffer: pcm, encoded: wav.Encode(pcm.Samples, sampleRate)}, nil
}

// Connect opens the SSH connection, retrying with backoff.
func (s *SSHSink) Connect(ctx context.Context) error {
	_, err := s.dial(ctx)
	return err
}

// Play queues buf for the anchor and returns without touching the network.
// The connection is established, if needed, by the goroutine that waits for
// the anchor.
func (s *SSHSink) Play(ctx context.Context, buf scheduler.Buffer, at time.Duration) error {
	b, ok := buf.(*sshBuffer)
	if !ok {
		return fmt.Errorf("unsupported buffer type %T", buf)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		client, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn("burst dropped: not connected", logging.Field{Key: "err", Value: err})
			return
		}
		if err := s.clock.waitUntil(ctx, at); err != nil {
			s.logger.Debug("queued burst dropped", logging.Field{Key: "err", Value: err})
			return
		}
		if err := s.run(client, b.encoded); err != nil {
			s.logger.Warn("remote playback failed", logging.Field{Key: "err", Value: err})
			s.reset(client)
		}
	}()
	return nil
}

// Close waits for queued bursts to play or be dropped, then releases the SSH
// connection.
func (s *SSHSink) Close() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SSHSink) run(client *ssh.Client, payload []byte) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	session.Stderr = &stderr
	if err := session.Run(s.cfg.Command); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run %q: %w: %s", s.cfg.Command, err, msg)
		}
		return fmt.Errorf("run %q: %w", s.cfg.Command, err)
	}
	return nil
}

func (s *SSHSink) reset(client *ssh.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == client {
		_ = s.client.Close()
		s.client = nil
	}
}

func (s *SSHSink) dial(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.DialAttempts-1)), ctx)

	var client *ssh.Client
	op := func() error {
		dialer := net.Dialer{Timeout: config.Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial ssh: %w", err)
		}
		clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err != nil {
			conn.Close()
			// Authentication failures will not improve with retries.
			if strings.Contains(err.Error(), "unable to authenticate") {
				return backoff.Permanent(fmt.Errorf("create ssh client: %w", err))
			}
			return fmt.Errorf("create ssh client: %w", err)
		}
		client = ssh.NewClient(clientConn, chans, reqs)
		return nil
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn("ssh connect failed, retrying", logging.Field{Key: "err", Value: err}, logging.Field{Key: "backoff", Value: next.String()})
	}
	if err := backoff.RetryNotify(op, retry, notify); err != nil {
		return nil, err
	}
	s.logger.Info("ssh connected", logging.Field{Key: "addr", Value: addr})
	s.client = client
	return client, nil
}

func (s *SSHSink) clientConfig() (*ssh.ClientConfig, error) {
	auth := []ssh.AuthMethod{}
	if s.cfg.Password != "" {
		auth = append(auth, ssh.Password(s.cfg.Password))
	}
	if s.cfg.KeyPath != "" {
		key, err := os.ReadFile(s.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}
	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}, nil
}
