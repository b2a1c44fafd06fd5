// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"bufio"
	"io"
	"sync"

	"github.com/slugrunner/agent/internal/loghub"
)

// pumpOutput reads lines from r and publishes each to hub under channel,
// returning once r is closed by the child (EOF) or returns an error.
// bufio.Scanner's default split function already implements spec.md
// §4.4's "LF, and a lone CR before LF is dropped" line terminator rule.
func pumpOutput(r io.Reader, hub *loghub.Hub, channel loghub.Channel) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		hub.Publish(channel, scanner.Text())
	}
}

// pumpPipes starts one pump goroutine per stream and returns a function
// that blocks until both have returned, so the supervisor can be certain
// trailing output was delivered before closing the log hub.
func pumpPipes(stdout, stderr io.Reader, hub *loghub.Hub) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		pumpOutput(stdout, hub, loghub.ChannelStdout)
	}()
	go func() {
		defer wg.Done()
		pumpOutput(stderr, hub, loghub.ChannelStderr)
	}()

	return wg.Wait
}
