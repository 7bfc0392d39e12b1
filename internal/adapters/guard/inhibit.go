package guard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coreos/go-systemd/v22/login1"
)

// Inhibitor takes a logind inhibitor lock. *login1.Conn satisfies it.
type Inhibitor interface {
	Inhibit(what, who, why, mode string) (*os.File, error)
}

// Inhibit holds a logind "sleep" block lock while acquired, so the host does
// not suspend mid-transfer.
type Inhibit struct {
	conn Inhibitor
	who  string
	why  string

	mu   sync.Mutex
	lock io.Closer
}

// NewInhibit wraps an existing inhibitor.
func NewInhibit(conn Inhibitor, who, why string) *Inhibit {
	return &Inhibit{conn: conn, who: who, why: why}
}

// DialInhibit connects to logind over the system bus.
func DialInhibit(who, why string) (*Inhibit, *login1.Conn, error) {
	conn, err := login1.New()
	if err != nil {
		return nil, nil, fmt.Errorf("connect to logind: %w", err)
	}
	return NewInhibit(conn, who, why), conn, nil
}

func (g *Inhibit) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lock != nil {
		return nil
	}
	f, err := g.conn.Inhibit("sleep", g.who, g.why, "block")
	if err != nil {
		return fmt.Errorf("take inhibitor lock: %w", err)
	}
	if f == nil {
		return errors.New("logind returned no inhibitor descriptor")
	}
	g.lock = f
	return nil
}

// Release closes the inhibitor descriptor, which drops the lock.
func (g *Inhibit) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lock == nil {
		return nil
	}
	err := g.lock.Close()
	g.lock = nil
	return err
}

func (g *Inhibit) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lock != nil
}
