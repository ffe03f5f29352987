package git

import (
	"strings"

	"github.com/arvidsson/gitsync/protocol"
)

// clientFetchCapabilities lists, in preference order, every capability
// this client can make use of during a fetch. negotiateWantCapabilities
// keeps only the ones the server actually advertised, and of a pair in
// supersededBy only the preferred one.
var clientFetchCapabilities = []string{
	"multi_ack_detailed",
	"multi_ack",
	"no-done",
	"side-band-64k",
	"side-band",
	"thin-pack",
	"ofs-delta",
	"shallow",
}

// supersededBy maps a capability to the preferred alternative that is
// asserted in its place whenever the server advertises both.
var supersededBy = map[string]string{
	"multi_ack": "multi_ack_detailed",
	"side-band": "side-band-64k",
}

// negotiateWantCapabilities builds the capability string attached to the
// first "want" line: every client capability the server advertised (minus
// any superseded by an advertised preferred one), plus an agent token
// identifying this client.
func negotiateWantCapabilities(adv protocol.Capabilities, userAgent string) string {
	var picked []string
	for _, c := range clientFetchCapabilities {
		if better, ok := supersededBy[c]; ok && adv.Has(better) {
			continue
		}
		if adv.Has(c) {
			picked = append(picked, c)
		}
	}
	picked = append(picked, "agent="+userAgent)
	return strings.Join(picked, " ")
}

// clientPushCapabilities lists, in preference order, the capabilities this
// client asserts for a receive-pack push.
var clientPushCapabilities = []string{
	"report-status",
	"side-band-64k",
	"side-band",
}

// negotiatePushCapabilities builds the capability string attached to the
// first command line of a push.
func negotiatePushCapabilities(adv protocol.Capabilities, userAgent string) string {
	var picked []string
	for _, c := range clientPushCapabilities {
		if better, ok := supersededBy[c]; ok && adv.Has(better) {
			continue
		}
		if adv.Has(c) {
			picked = append(picked, c)
		}
	}
	picked = append(picked, "agent="+userAgent)
	return strings.Join(picked, " ")
}
