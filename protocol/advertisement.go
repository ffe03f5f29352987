package protocol

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/arvidsson/gitsync/protocol/hash"
)

// Advertisement is the result of parsing a protocol v1 ref advertisement:
// the initial flush-pkt-terminated block of "<object-id> <name>" lines a
// Git server sends immediately upon connecting (persistent transport) or
// in response to the smart-HTTP info/refs request, with the capability
// list piggybacked onto the first line after a NUL byte.
//
// See https://git-scm.com/docs/gitprotocol-pack#_reference_discovery
type Advertisement struct {
	Refs         []RefAdvertisement
	Capabilities Capabilities

	// SymRefs maps a ref name (most commonly "HEAD") to the ref it points
	// at, as asserted by one or more symref= capability tokens.
	SymRefs map[string]string
}

// RefAdvertisement is one "<object-id> <name>" line of the advertisement.
// Name is kept as a raw string rather than a RefName: the advertisement's
// first line may be the pseudo-ref "capabilities^{}" on an empty
// repository, which is not itself a usable ref.
type RefAdvertisement struct {
	ObjectID hash.Hash
	Name     string
}

// Capabilities is the server's advertised capability set. A bare
// capability (no '=') maps to the empty string.
type Capabilities map[string]string

// Has reports whether a capability was advertised.
func (c Capabilities) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Value returns a capability's value, e.g. the "gitsync/0.1" in
// "agent=gitsync/0.1". Returns "" for bare capabilities or ones absent
// from the set; use Has to distinguish the two.
func (c Capabilities) Value(name string) string { return c[name] }

// ParseAdvertisement parses a sequence of already-decoded pkt-line
// payloads (as returned by ReadPktLines) into an Advertisement.
func ParseAdvertisement(lines [][]byte) (*Advertisement, error) {
	adv := &Advertisement{Capabilities: Capabilities{}, SymRefs: map[string]string{}}
	seen := map[string]bool{}

	for i, line := range lines {
		line = bytes.TrimSuffix(line, []byte("\n"))
		if len(line) == 0 {
			continue
		}

		if i == 0 {
			if idx := bytes.IndexByte(line, 0); idx >= 0 {
				parseCapabilities(line[idx+1:], adv.Capabilities, adv.SymRefs)
				line = line[:idx]
			}
		}

		fields := bytes.SplitN(line, []byte(" "), 2)
		if len(fields) != 2 {
			return nil, NewAdvertisementError("", fmt.Sprintf("malformed ref line %q", line))
		}

		name := string(fields[1])

		id, err := hash.FromHex(string(fields[0]))
		if err != nil {
			return nil, NewAdvertisementError(name, fmt.Sprintf("parsing object id: %v", err))
		}

		if name == "capabilities^{}" {
			// Empty-repository pseudo-ref: capabilities only, no real ref.
			continue
		}

		if seen[name] {
			return nil, NewAdvertisementError(name, "duplicate ref name")
		}
		seen[name] = true

		adv.Refs = append(adv.Refs, RefAdvertisement{ObjectID: id, Name: name})
	}

	return adv, nil
}

// parseCapabilities splits a NUL-separated capability string into caps,
// diverting symref= tokens (which can appear more than once and whose
// value is itself a "source:target" pair) into symRefs.
func parseCapabilities(raw []byte, caps Capabilities, symRefs map[string]string) {
	for _, tok := range bytes.Fields(raw) {
		eq := bytes.IndexByte(tok, '=')
		if eq < 0 {
			caps[string(tok)] = ""
			continue
		}

		key, value := string(tok[:eq]), string(tok[eq+1:])
		if key == "symref" {
			if src, target, ok := strings.Cut(value, ":"); ok {
				symRefs[src] = target
			}
			continue
		}
		caps[key] = value
	}
}
