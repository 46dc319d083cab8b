package messaging

import (
	"fmt"
	"strings"
)

// Address groups.
const (
	GroupService = "SERV"
	GroupDriver  = "DRIV"
	GroupClient  = "CLNT"
)

// Address identifies the source or destination of a platform message.
//
// The zero value is the broadcast address.
type Address struct {
	Group     string
	Namespace string
	ID        string
}

// Broadcast returns the broadcast address.
func Broadcast() Address {
	return Address{}
}

// ServiceAddress returns the address of a platform service object, e.g. a
// subsystem instance (SERV:subalarm:<placeID>) or the place itself
// (SERV:place:<placeID>). An empty id addresses the service as a whole.
func ServiceAddress(namespace, id string) Address {
	return Address{Group: GroupService, Namespace: namespace, ID: id}
}

// DriverAddress returns the address of a device driver.
func DriverAddress(id string) Address {
	return Address{Group: GroupDriver, Namespace: "dev", ID: id}
}

// ParseAddress parses the textual form produced by Address.String.
// The empty string parses to the broadcast address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Broadcast(), nil
	}
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	switch parts[0] {
	case GroupService, GroupDriver, GroupClient:
	default:
		return Address{}, fmt.Errorf("%w: unknown group %q", ErrInvalidAddress, parts[0])
	}
	addr := Address{Group: parts[0], Namespace: parts[1]}
	if len(parts) == 3 {
		addr.ID = parts[2]
	}
	return addr, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Intended for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsBroadcast reports whether a is the broadcast address.
func (a Address) IsBroadcast() bool {
	return a.Group == ""
}

// String returns GROUP:NAMESPACE:ID, or "" for broadcast.
func (a Address) String() string {
	if a.IsBroadcast() {
		return ""
	}
	return a.Group + ":" + a.Namespace + ":" + a.ID
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
