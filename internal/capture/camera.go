package capture

import (
	"context"
	"fmt"
	"sync"
)

// Camera guards a single Device so that at most one owner uses it at a time.
type Camera struct {
	device Device

	mu     sync.Mutex
	holder string
}

func NewCamera(device Device) *Camera {
	return &Camera{device: device}
}

// Acquire opens the device for owner, bound to frames from publisher. It fails
// with ErrDeviceBusy while another owner holds it, or with the device's open
// error.
func (c *Camera) Acquire(ctx context.Context, owner, publisher string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder != "" {
		return fmt.Errorf("%w (held by %s)", ErrDeviceBusy, c.holder)
	}
	if err := c.device.Open(ctx, publisher); err != nil {
		return err
	}
	c.holder = owner
	return nil
}

// Read reads one frame on behalf of owner.
func (c *Camera) Read(ctx context.Context, owner string) (Frame, error) {
	c.mu.Lock()
	held := c.holder == owner
	c.mu.Unlock()
	if !held {
		return Frame{}, ErrDeviceBusy
	}
	return c.device.ReadFrame(ctx)
}

// Release closes the device if owner holds it. Releasing twice is a no-op.
func (c *Camera) Release(owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder != owner {
		return nil
	}
	c.holder = ""
	return c.device.Close()
}

// Holder returns the current owner, or "" when free.
func (c *Camera) Holder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder
}
