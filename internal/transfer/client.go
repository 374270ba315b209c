package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"ferry/internal/artifact"
	"ferry/internal/services"
)

// ErrRemoteMkdir marks a failure to create the ingest-side directory. A push
// aborts before any transfer when it occurs.
var ErrRemoteMkdir = errors.New("remote mkdir failed")

// Endpoint describes the ingest host and the credentials for one session.
// Identity is the staged key path, KnownHosts the resolved pin file.
type Endpoint struct {
	Host           string
	User           string
	Port           int
	Identity       string
	KnownHosts     string
	ConnectTimeout int
}

// Stats summarizes one rsync run.
type Stats struct {
	Bytes int64
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client runs remote operations against the ingest host through the ssh and
// rsync binaries.
type Client struct {
	endpoint    Endpoint
	rsyncBinary string
	sshBinary   string
	exec        Executor
}

// New constructs a transfer client for the given endpoint.
func New(endpoint Endpoint, rsyncBinary, sshBinary string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint.Host) == "" {
		return nil, errors.New("ingest host required")
	}
	if strings.TrimSpace(endpoint.User) == "" {
		return nil, errors.New("ingest user required")
	}
	rsyncBinary = strings.TrimSpace(rsyncBinary)
	sshBinary = strings.TrimSpace(sshBinary)
	if rsyncBinary == "" || sshBinary == "" {
		return nil, errors.New("rsync and ssh binaries required")
	}

	client := &Client{
		endpoint:    endpoint,
		rsyncBinary: rsyncBinary,
		sshBinary:   sshBinary,
		exec:        commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Probe validates non-interactive authentication by running true on the
// ingest host.
func (c *Client) Probe(ctx context.Context) error {
	args := append(c.sshOptions(), c.target(), "true")
	if err := c.exec.Run(ctx, c.sshBinary, args, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "transfer", "probe",
			fmt.Sprintf("ssh authentication probe of %s failed", c.target()), err)
	}
	return nil
}

// Mkdir creates remoteDir (and parents) on the ingest host.
func (c *Client) Mkdir(ctx context.Context, remoteDir string) error {
	args := append(c.sshOptions(), c.target(), "mkdir", "-p", shellQuote(remoteDir))
	if err := c.exec.Run(ctx, c.sshBinary, args, nil); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRemoteMkdir, remoteDir, err)
	}
	return nil
}

// Sync mirrors localDir to remoteDir: rsync archive mode with delete
// reconciliation and permission normalization. Sentinel files never leave
// the worker. Reported bytes come from rsync's stats output.
func (c *Client) Sync(ctx context.Context, localDir, remoteDir string) (Stats, error) {
	args := []string{"-a", "-s", "--delete", "--chmod=D755,F644", "--stats"}
	for _, sentinel := range artifact.Sentinels() {
		args = append(args, "--exclude="+sentinel)
	}
	args = append(args, "-e", c.sshCommand())
	args = append(args, localDir+"/", c.target()+":"+remoteDir+"/")

	var stats Stats
	err := c.exec.Run(ctx, c.rsyncBinary, args, func(line string) {
		if bytes, ok := parseTransferredBytes(line); ok {
			stats.Bytes = bytes
		}
	})
	if err != nil {
		return Stats{}, services.Wrap(services.ErrExternalTool, "transfer", "sync",
			fmt.Sprintf("rsync to %s failed", remoteDir), err)
	}
	return stats, nil
}

// Touch creates remotePath on the ingest host. The remote readiness handoff
// uses it after a completed sync.
func (c *Client) Touch(ctx context.Context, remotePath string) error {
	args := append(c.sshOptions(), c.target(), "touch", shellQuote(remotePath))
	if err := c.exec.Run(ctx, c.sshBinary, args, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "transfer", "touch",
			fmt.Sprintf("touch %s failed", remotePath), err)
	}
	return nil
}

func (c *Client) target() string {
	return c.endpoint.User + "@" + c.endpoint.Host
}

// sshOptions assembles the non-interactive option set shared by every remote
// command. Host keys must match the resolved pins; there is no prompt path.
func (c *Client) sshOptions() []string {
	opts := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=yes",
	}
	if c.endpoint.ConnectTimeout > 0 {
		opts = append(opts, "-o", fmt.Sprintf("ConnectTimeout=%d", c.endpoint.ConnectTimeout))
	}
	if c.endpoint.Identity != "" {
		opts = append(opts,
			"-o", "IdentityFile="+c.endpoint.Identity,
			"-o", "IdentitiesOnly=yes",
		)
	}
	if c.endpoint.KnownHosts != "" {
		opts = append(opts, "-o", "UserKnownHostsFile="+c.endpoint.KnownHosts)
	}
	if c.endpoint.Port > 0 && c.endpoint.Port != 22 {
		opts = append(opts, "-p", strconv.Itoa(c.endpoint.Port))
	}
	return opts
}

// sshCommand renders the ssh invocation rsync should use for its transport.
func (c *Client) sshCommand() string {
	parts := append([]string{c.sshBinary}, c.sshOptions()...)
	return strings.Join(parts, " ")
}

// shellQuote wraps a remote path in single quotes for the remote shell.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// parseTransferredBytes extracts the byte count from rsync's stats line,
// e.g. "Total transferred file size: 1,234,567 bytes".
func parseTransferredBytes(line string) (int64, bool) {
	const prefix = "Total transferred file size:"
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	value := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	value = strings.TrimSuffix(value, " bytes")
	value = strings.ReplaceAll(value, ",", "")
	bytes, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return bytes, true
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var stderrTail []string
	var tailMu sync.Mutex

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
	}

	wg.Add(2)
	go scan(stdout, func(line string) {
		if onStdout != nil {
			onStdout(line)
		}
	})
	go scan(stderr, func(line string) {
		tailMu.Lock()
		stderrTail = append(stderrTail, line)
		if len(stderrTail) > 20 {
			stderrTail = stderrTail[1:]
		}
		tailMu.Unlock()
	})

	wg.Wait()
	if err := cmd.Wait(); err != nil {
		tailMu.Lock()
		tail := strings.TrimSpace(strings.Join(stderrTail, "; "))
		tailMu.Unlock()
		if tail != "" {
			return fmt.Errorf("%w: %s", err, tail)
		}
		return err
	}
	return nil
}
