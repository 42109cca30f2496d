package dlv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/solo-io/go-utils/contextutils"
	"github.com/solo-io/squash-session/pkg/utils"
)

const portPollInterval = 100 * time.Millisecond

// headlessServer is a dlv process serving the rpc2 api on a local port.
// done is closed once dlv exited and all of its output was forwarded.
type headlessServer struct {
	cmd  *exec.Cmd
	addr string
	done <-chan struct{}
}

func serverArgs(addr, path, workingDir string, args []string) []string {
	out := []string{"exec", path, "--headless", "--api-version=2", "--accept-multiclient", "--listen=" + addr}
	if workingDir != "" {
		out = append(out, "--wd", workingDir)
	}
	if len(args) > 0 {
		out = append(out, "--")
		out = append(out, args...)
	}
	return out
}

// startServer launches dlv for path and waits for its api port to open.
// Every line the debuggee (or dlv) writes is handed to output.
func startServer(ctx context.Context, dlvPath, path, workingDir string, args []string, timeout time.Duration, output func(stderr bool, line string)) (*headlessServer, error) {
	logger := contextutils.LoggerFrom(ctx)

	port := 0
	if err := utils.FindAnyFreePort(&port); err != nil {
		return nil, errors.Wrap(err, "finding a port for dlv")
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	cmd := exec.Command(dlvPath, serverArgs(addr, path, workingDir, args)...)
	logger.Debugw("dlv command", "args", cmd.Args)
	done, err := runForwarding(cmd, output)
	if err != nil {
		logger.Errorw("Failed to start dlv", "err", err)
		return nil, errors.Wrapf(err, "starting %v", dlvPath)
	}
	s := &headlessServer{cmd: cmd, addr: addr, done: done}
	go func() {
		<-done
		logger.Debugw("dlv exited", "addr", addr)
	}()

	attempts := uint(timeout / portPollInterval)
	if attempts == 0 {
		attempts = 1
	}
	if err := utils.WaitForPort(addr, attempts, portPollInterval); err != nil {
		logger.Errorw("can't reach headless dlv", "addr", addr, "err", err)
		s.kill()
		return nil, errors.Wrapf(err, "waiting for dlv on %v", addr)
	}
	logger.Infow("dlv listening", "addr", addr, "pid", cmd.Process.Pid)
	return s, nil
}

func (s *headlessServer) kill() {
	select {
	case <-s.done:
		return
	default:
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// runForwarding starts cmd and hands every line it writes to output. The
// returned channel is closed after cmd exited and both streams were drained.
func runForwarding(cmd *exec.Cmd, output func(stderr bool, line string)) (<-chan struct{}, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		forwardLines(stdout, func(line string) { output(false, line) })
	}()
	go func() {
		defer readers.Done()
		forwardLines(stderr, func(line string) { output(true, line) })
	}()

	done := make(chan struct{})
	go func() {
		// Wait closes the pipes, so the readers have to drain them first
		readers.Wait()
		cmd.Wait()
		close(done)
	}()
	return done, nil
}

func forwardLines(r io.Reader, f func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		f(scanner.Text())
	}
}
