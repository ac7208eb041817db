package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// uinputSettle is how long the kernel needs before a new virtual keyboard
// receives events.
const uinputSettle = 2 * time.Second

// UinputPaster types the chord on a virtual keyboard. Delivery cannot be
// observed, so every paste is unconfirmed.
type UinputPaster struct {
	mu      sync.Mutex
	kb      keybd_event.KeyBonding
	readyAt time.Time
}

// NewUinputPaster creates the virtual keyboard. It needs write access to
// /dev/uinput.
func NewUinputPaster() (*UinputPaster, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create uinput keyboard: %w", err)
	}
	return &UinputPaster{kb: kb, readyAt: time.Now().Add(uinputSettle)}, nil
}

func (p *UinputPaster) Paste(ctx context.Context, sc Shortcut) (bool, error) {
	code, ok := uinputKeys[sc.Key]
	if !ok {
		return false, fmt.Errorf("key %q is not supported by the uinput injector", sc.Key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if wait := time.Until(p.readyAt); wait > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}

	p.kb.Clear()
	p.kb.SetKeys(code)
	p.kb.HasCTRL(sc.has("CTRL"))
	p.kb.HasSHIFT(sc.has("SHIFT"))
	p.kb.HasALT(sc.has("ALT"))
	p.kb.HasSuper(sc.has("SUPER"))
	if err := p.kb.Launching(); err != nil {
		return false, fmt.Errorf("send uinput chord: %w", err)
	}
	return false, nil
}

var uinputKeys = map[string]int{
	"A": keybd_event.VK_A, "B": keybd_event.VK_B, "C": keybd_event.VK_C,
	"D": keybd_event.VK_D, "E": keybd_event.VK_E, "F": keybd_event.VK_F,
	"G": keybd_event.VK_G, "H": keybd_event.VK_H, "I": keybd_event.VK_I,
	"J": keybd_event.VK_J, "K": keybd_event.VK_K, "L": keybd_event.VK_L,
	"M": keybd_event.VK_M, "N": keybd_event.VK_N, "O": keybd_event.VK_O,
	"P": keybd_event.VK_P, "Q": keybd_event.VK_Q, "R": keybd_event.VK_R,
	"S": keybd_event.VK_S, "T": keybd_event.VK_T, "U": keybd_event.VK_U,
	"V": keybd_event.VK_V, "W": keybd_event.VK_W, "X": keybd_event.VK_X,
	"Y": keybd_event.VK_Y, "Z": keybd_event.VK_Z,
	"INSERT": keybd_event.VK_INSERT,
	"ENTER":  keybd_event.VK_ENTER,
}
