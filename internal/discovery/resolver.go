package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/docbrown/xbdm/internal/protocol"
)

var (
	ErrNotFound  = errors.New("discovery: console not found")
	ErrAmbiguous = errors.New("discovery: name matches multiple consoles")
	ErrTimeout   = errors.New("discovery: lookup timed out")
)

// DefaultWindow is how long a query waits for console replies.
const DefaultWindow = 300 * time.Millisecond

// Endpoint is a dialable console address. Name is empty for literal
// addresses that never touched the network.
type Endpoint struct {
	Name string
	Addr net.IP
	Port int
}

func (e Endpoint) HostPort() string {
	return net.JoinHostPort(e.Addr.String(), strconv.Itoa(e.Port))
}

// Is360 reports whether the console answered from the 360-era monitor
// port.
func (e Endpoint) Is360() bool { return e.Port == protocol.Port360 }

// IsClassic reports whether the console answered from the classic
// monitor port.
func (e Endpoint) IsClassic() bool { return e.Port == protocol.PortClassic }

// Reply is one datagram received during a query window.
type Reply struct {
	From net.UDPAddr
	Data []byte
}

// Querier transmits one query datagram and collects every reply that
// arrives inside its window.
type Querier interface {
	Query(ctx context.Context, packet []byte, targets []string) ([]Reply, error)
}

// Config shapes a Resolver.
type Config struct {
	Querier Querier  // default LAN broadcast querier
	Targets []string // query destinations, default LAN broadcast on both monitor ports
}

// Resolver maps debug names to endpoints.
type Resolver struct {
	querier Querier
	targets []string
}

func NewResolver(cfg Config) *Resolver {
	querier := cfg.Querier
	if querier == nil {
		querier = &BroadcastQuerier{}
	}
	targets := cfg.Targets
	if len(targets) == 0 {
		targets = []string{
			net.JoinHostPort("255.255.255.255", strconv.Itoa(protocol.Port360)),
			net.JoinHostPort("255.255.255.255", strconv.Itoa(protocol.PortClassic)),
		}
	}
	return &Resolver{querier: querier, targets: targets}
}

// Resolve maps a debug name or literal address to an endpoint. Literal
// addresses, with or without a port, bypass the network entirely; a
// bare literal gets the 360-era monitor port. A name matched by more
// than one console fails with ErrAmbiguous rather than picking one.
func (r *Resolver) Resolve(ctx context.Context, target string) (Endpoint, error) {
	if ep, ok := parseLiteral(target); ok {
		return ep, nil
	}
	if target == "" {
		return Endpoint{}, fmt.Errorf("%w: empty target", ErrNotFound)
	}
	pkt, err := AppendNameQuery(nil, target)
	if err != nil {
		return Endpoint{}, err
	}
	replies, err := r.querier.Query(ctx, pkt, r.targets)
	if err != nil {
		return Endpoint{}, classify(err)
	}
	var found []Endpoint
	for _, ep := range candidates(replies) {
		if ep.Name == target {
			found = append(found, ep)
		}
	}
	switch len(found) {
	case 0:
		return Endpoint{}, fmt.Errorf("%w: %q", ErrNotFound, target)
	case 1:
		return found[0], nil
	default:
		return Endpoint{}, fmt.Errorf("%w: %q answered from %d addresses", ErrAmbiguous, target, len(found))
	}
}

// ResolveAddr maps a target to a dialable address string. Anything
// shaped like host:port passes through untouched so the dialer can do
// DNS; everything else goes through Resolve.
func (r *Resolver) ResolveAddr(ctx context.Context, target string) (string, error) {
	if host, portStr, err := net.SplitHostPort(target); err == nil && host != "" {
		if _, perr := strconv.Atoi(portStr); perr == nil {
			return target, nil
		}
	}
	ep, err := r.Resolve(ctx, target)
	if err != nil {
		return "", err
	}
	return ep.HostPort(), nil
}

// Discover lists every console answering on the local network. An
// empty list is a normal outcome, not an error.
func (r *Resolver) Discover(ctx context.Context) ([]Endpoint, error) {
	replies, err := r.querier.Query(ctx, AppendWildcardQuery(nil), r.targets)
	if err != nil {
		return nil, classify(err)
	}
	return candidates(replies), nil
}

// Identify asks the console at a known address for its name and
// generation. Unlike a literal Resolve this does touch the network:
// the wildcard query goes straight to the address on both monitor
// ports.
func (r *Resolver) Identify(ctx context.Context, ip net.IP) (Endpoint, error) {
	if ip == nil {
		return Endpoint{}, fmt.Errorf("%w: no address", ErrNotFound)
	}
	targets := []string{
		net.JoinHostPort(ip.String(), strconv.Itoa(protocol.Port360)),
		net.JoinHostPort(ip.String(), strconv.Itoa(protocol.PortClassic)),
	}
	replies, err := r.querier.Query(ctx, AppendWildcardQuery(nil), targets)
	if err != nil {
		return Endpoint{}, classify(err)
	}
	for _, ep := range candidates(replies) {
		if ep.Addr.Equal(ip) {
			return ep, nil
		}
	}
	return Endpoint{}, fmt.Errorf("%w: %s", ErrNotFound, ip)
}

// parseLiteral recognizes "ip" and "ip:port" targets.
func parseLiteral(target string) (Endpoint, bool) {
	if host, portStr, err := net.SplitHostPort(target); err == nil {
		ip := net.ParseIP(host)
		port, perr := strconv.Atoi(portStr)
		if ip != nil && perr == nil && port > 0 && port < 1<<16 {
			return Endpoint{Addr: ip, Port: port}, true
		}
		return Endpoint{}, false
	}
	if ip := net.ParseIP(target); ip != nil {
		return Endpoint{Addr: ip, Port: protocol.Port360}, true
	}
	return Endpoint{}, false
}

// candidates filters a reply batch down to distinct consoles. Replies
// must come from a monitor port and parse as advertisements. Later
// replies from an already-seen address are dropped, so a console
// answering on both monitor ports counts once.
func candidates(replies []Reply) []Endpoint {
	var out []Endpoint
	seen := make(map[string]struct{}, len(replies))
	for _, rep := range replies {
		if rep.From.Port != protocol.Port360 && rep.From.Port != protocol.PortClassic {
			continue
		}
		name, err := ParseReply(rep.Data)
		if err != nil {
			continue
		}
		key := rep.From.IP.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Endpoint{Name: name, Addr: rep.From.IP, Port: rep.From.Port})
	}
	return out
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
