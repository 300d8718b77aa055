package peer

import (
	"errors"
	"fmt"

	"github.com/1ureka/peerlink/internal/config"
)

type hostRole struct{}

func (hostRole) role() config.Role               { return config.RoleHost }
func (hostRole) mayInitiate(connected bool) bool { return true }

// Host is the peer that creates every data channel and sends the first offer.
type Host struct {
	*Controller
}

// NewHost creates the controller and opens every configured channel on the
// transport, which in turn triggers the first negotiation once Connect runs.
func NewHost(opts Options) (*Host, error) {
	c, err := newController(opts, hostRole{})
	if err != nil {
		return nil, err
	}
	h := &Host{Controller: c}

	for _, desc := range c.mux.descriptorList() {
		ch, err := c.transport.CreateDataChannel(desc.Name, desc.Options)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create data channel %q: %w", desc.Name, err), c.Close())
		}
		if err := c.mux.attach(ch); err != nil {
			return nil, errors.Join(err, c.Close())
		}
	}

	if c.stream != nil {
		if err := c.addMediaStream(); err != nil {
			return nil, errors.Join(err, c.Close())
		}
	}
	return h, nil
}
