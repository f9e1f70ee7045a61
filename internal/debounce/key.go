package debounce

import (
	"fmt"
	"strings"

	"github.com/leadwire/leadwire/internal/schema"
)

// Key addresses one conversation: a tenant's channel instance talking to one
// external contact. It is the sole addressing key for timers and routing.
type Key struct {
	CompanyID  string
	InstanceID string
	FromNumber string
}

// KeyFor derives the conversation key from a canonical inbound message.
func KeyFor(msg schema.InboundMessage) Key {
	return Key{
		CompanyID:  msg.CompanyID,
		InstanceID: msg.InstanceID,
		FromNumber: msg.FromNumber,
	}
}

// String renders the key in its wire form, company id first so every stored
// entry is namespaced by tenant.
func (k Key) String() string {
	return k.CompanyID + "|" + k.InstanceID + "|" + k.FromNumber
}

// ParseKey parses the wire form produced by String.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("debounce: malformed conversation key %q", s)
	}
	return Key{CompanyID: parts[0], InstanceID: parts[1], FromNumber: parts[2]}, nil
}
