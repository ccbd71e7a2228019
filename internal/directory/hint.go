package directory

import "github.com/matrix-construct/construct-sub003/internal/dnswire"

// Hint is a static, file-configured override for a destination's connect
// address, bypassing the SRV/AAAA/A resolution pipeline entirely — the same
// role DNS zone records play for the clients a BIND-style server answers,
// generalized here to federation destinations instead of DNS names.
type Hint struct {
	Addr string
	Port uint16
}

// DefaultFedPort is used for a Hint that only overrides the address, not the
// port (no SRV-equivalent record in the zone).
const DefaultFedPort = 8448

// ResolveHint looks up destination as an owner name in the zone, returning
// its first AAAA record, or else its first A record, as a connect-address
// override. ok=false means the zone holds no override for destination.
func (z *Zone) ResolveHint(destination string) (Hint, bool) {
	for _, qtype := range []uint16{uint16(dnswire.TypeAAAA), uint16(dnswire.TypeA)} {
		recs := z.Lookup(destination, qtype, uint16(dnswire.ClassIN))
		for _, r := range recs {
			addr, ok := r.RData.(string)
			if !ok || addr == "" {
				continue
			}
			return Hint{Addr: addr, Port: DefaultFedPort}, true
		}
	}
	return Hint{}, false
}

// Directory aggregates every loaded Zone so the batch I/O facade can check a
// destination against whichever zone file claims its origin.
type Directory struct {
	zones []*Zone
}

// NewDirectory wraps a set of loaded zones.
func NewDirectory(zones []*Zone) *Directory {
	return &Directory{zones: zones}
}

// ResolveHint checks every zone for an override, returning the first match.
func (d *Directory) ResolveHint(destination string) (Hint, bool) {
	if d == nil {
		return Hint{}, false
	}
	for _, z := range d.zones {
		if hint, ok := z.ResolveHint(destination); ok {
			return hint, ok
		}
	}
	return Hint{}, false
}
