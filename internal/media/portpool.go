package media

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoPorts is returned when every RTP port in the range is in use.
var ErrNoPorts = errors.New("no RTP ports available")

// PortPool hands out even RTP ports from a range. The odd port above each
// is left for RTCP.
type PortPool struct {
	mu        sync.Mutex
	minPort   int
	maxPort   int
	next      int
	allocated map[int]bool
}

// NewPortPool creates a pool over [minPort, maxPort].
func NewPortPool(minPort, maxPort int) *PortPool {
	if minPort%2 != 0 {
		minPort++
	}
	return &PortPool{
		minPort:   minPort,
		maxPort:   maxPort,
		next:      minPort,
		allocated: make(map[int]bool),
	}
}

// Allocate returns the next free port, round-robin so a just-released port
// is not reused immediately.
func (p *PortPool) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := p.size()
	for i := 0; i < size; i++ {
		port := p.next
		p.next += 2
		if p.next >= p.maxPort {
			p.next = p.minPort
		}
		if !p.allocated[port] {
			p.allocated[port] = true
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w (range %d-%d)", ErrNoPorts, p.minPort, p.maxPort)
}

// Release returns a port to the pool.
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.allocated, port)
}

// Available returns the number of free ports.
func (p *PortPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size() - len(p.allocated)
}

// Allocated returns the number of ports in use.
func (p *PortPool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.allocated)
}

func (p *PortPool) size() int {
	if p.maxPort <= p.minPort {
		return 0
	}
	return (p.maxPort - p.minPort + 1) / 2
}
