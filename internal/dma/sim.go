package dma

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// SimDriver is a software stand-in for the real DMA/PGP character device,
// used by tests and by the CLI's run and inspect subcommands. It models "dmaMapDma" as a
// fixed set of pre-allocated buffers callers write into directly, and
// "dmaReadBulkIndex" as a bounded-blocking poll on a pipe: Push signals
// the read side exactly like a hardware interrupt would, and ReadBulk
// blocks in unix.Poll up to boundMillis with no completions pending,
// returning (nil, nil) rather than erroring, matching the bounded-wait
// contract Reader relies on.
type SimDriver struct {
	mu   sync.Mutex
	q    []Completion
	bufs [][]byte

	rFile, wFile *os.File
	boundMillis  int
}

// NewSimDriver allocates nBuffers mapped buffers of bufSize bytes and a
// wakeup pipe. boundMillis is the poll timeout ReadBulk uses when the
// queue is empty.
func NewSimDriver(nBuffers, bufSize, boundMillis int) (*SimDriver, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("dma: sim driver pipe: %w", err)
	}
	bufs := make([][]byte, nBuffers)
	for i := range bufs {
		bufs[i] = make([]byte, bufSize)
	}
	return &SimDriver{bufs: bufs, rFile: r, wFile: w, boundMillis: boundMillis}, nil
}

// Buffer returns the mapped DMA buffer at index, for a test producer to
// write a completion's raw bytes into before calling Push.
func (d *SimDriver) Buffer(index uint32) []byte { return d.bufs[index] }

// Push enqueues a completion and wakes any goroutine blocked in ReadBulk.
func (d *SimDriver) Push(c Completion) error {
	d.mu.Lock()
	d.q = append(d.q, c)
	d.mu.Unlock()
	_, err := d.wFile.Write([]byte{1})
	return err
}

// ReadBulk implements Driver. It polls the wakeup pipe for up to
// boundMillis, then drains up to maxCount queued completions.
func (d *SimDriver) ReadBulk(maxCount int) ([]Completion, error) {
	fds := []unix.PollFd{{Fd: int32(d.rFile.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, d.boundMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("dma: poll: %w", err)
	}
	if n <= 0 {
		return nil, nil
	}

	drain := make([]byte, 4096)
	unix.Read(int(d.rFile.Fd()), drain)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.q) == 0 {
		return nil, nil
	}
	take := maxCount
	if take > len(d.q) {
		take = len(d.q)
	}
	out := append([]Completion(nil), d.q[:take]...)
	d.q = d.q[take:]
	return out, nil
}

// Return is a no-op: the simulated buffers are scratch memory the test
// producer reuses directly, not a driver-managed freelist.
func (d *SimDriver) Return(indices []uint32) error { return nil }

// Close releases the wakeup pipe.
func (d *SimDriver) Close() error {
	d.rFile.Close()
	return d.wFile.Close()
}
