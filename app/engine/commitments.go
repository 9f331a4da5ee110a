package engine

// commitments tracks properties locked into an open auction or trade so the
// two subsystems cannot double-commit the same asset. Keys are property ids,
// values the auction/trade id holding the lock. Access is already serialized
// by the game mutex.
type commitments struct {
	held map[string]string
}

func newCommitments() *commitments {
	return &commitments{held: make(map[string]string)}
}

func (c *commitments) Reserve(propertyID, holderID string) bool {
	if _, taken := c.held[propertyID]; taken {
		return false
	}
	c.held[propertyID] = holderID
	return true
}

func (c *commitments) Release(propertyID, holderID string) {
	if c.held[propertyID] == holderID {
		delete(c.held, propertyID)
	}
}

// ReleaseHolder drops every lock held by one auction/trade.
func (c *commitments) ReleaseHolder(holderID string) {
	for prop, h := range c.held {
		if h == holderID {
			delete(c.held, prop)
		}
	}
}

func (c *commitments) Holder(propertyID string) (string, bool) {
	h, ok := c.held[propertyID]
	return h, ok
}
