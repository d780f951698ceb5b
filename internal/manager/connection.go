package manager

import (
	"net"
	"sync"
)

// Connection describes one live spliced session. The Manager's connection
// and grace indices hold only a weak.Pointer[Connection]; the splice
// goroutine that owns the two socket halves keeps the sole *Connection
// local variable, which is the strong reference that keeps the record
// reachable. When that goroutine returns, the record becomes unreachable
// and a later sweep observes the weak pointer as dead — there is no
// back-pointer from here to the index, by design (see Manager.sweepOnceImpl).
type Connection struct {
	Peer    net.Addr
	Backend string
	Domain  string

	abortOnce sync.Once
	abort     func()
}

// abortConnection tears down both socket halves of a forcibly disconnected
// session. It is the only way a splice goroutine is torn down from outside
// itself — RmMapping(domain, true) calls it for every connection it finds
// still registered under domain.
func abortConnection(c *Connection) {
	if c == nil || c.abort == nil {
		return
	}
	c.abortOnce.Do(c.abort)
}
