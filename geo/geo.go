package geo

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	goFactor "github.com/MrEthical07/goFactor"
)

// ErrUnresolvable is returned for addresses no location can be derived for.
var ErrUnresolvable = errors.New("geo: address cannot be resolved")

// parsePublic returns addr when it is a globally routable unicast address.
func parsePublic(raw string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return netip.Addr{}, fmt.Errorf("%w: %s is not public", ErrUnresolvable, addr)
	}
	return addr, nil
}

// locationKey checks that loc is a "lat,lng" pair and returns it as
// given. Two logins share a location only when the provider reports the
// same pair.
func locationKey(loc string) (string, bool) {
	loc = strings.TrimSpace(loc)
	latRaw, lngRaw, ok := strings.Cut(loc, ",")
	if !ok {
		return "", false
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64); err != nil {
		return "", false
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64); err != nil {
		return "", false
	}
	return loc, true
}

// Static resolves from a fixed table keyed by address.
type Static map[string]goFactor.Location

var _ goFactor.GeoResolver = Static(nil)

func (s Static) Resolve(_ context.Context, addr string) (goFactor.Location, error) {
	loc, ok := s[strings.TrimSpace(addr)]
	if !ok {
		return goFactor.Location{}, ErrUnresolvable
	}
	return loc, nil
}
