package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/peerlink/internal/config"
)

type guestRole struct{}

func (guestRole) role() config.Role { return config.RoleGuest }

// mayInitiate keeps the Guest from offering until the Host's offer has
// connected the pair.
func (guestRole) mayInitiate(connected bool) bool { return connected }

// Guest is the peer that answers the Host's first offer and adopts the
// channels the Host opens.
type Guest struct {
	*Controller
	autoOnce sync.Once
}

// NewGuest creates a guest controller. It creates no channels itself.
func NewGuest(opts Options) (*Guest, error) {
	c, err := newController(opts, guestRole{})
	if err != nil {
		return nil, err
	}
	g := &Guest{Controller: c}

	if opts.AutoConnect {
		unsubscribe := c.lifecycle.Connecting.Subscribe(func(struct{}) {
			g.autoOnce.Do(func() { go g.autoConnect() })
		})
		c.cleanup = append(c.cleanup, unsubscribe)
		// Incoming offers are only handled once the loop runs.
		c.loop.start()
	}

	if c.stream != nil {
		if err := c.addMediaStream(); err != nil {
			return nil, errors.Join(err, c.Close())
		}
	}
	return g, nil
}

func (g *Guest) autoConnect() {
	if err := g.Connect(context.Background()); err != nil {
		g.log.Error("auto connect: %v", err)
	}
}
