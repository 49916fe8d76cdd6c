package domain

import "strings"

// Route is the closed set of destinations an inbound message can be handled
// by. Every message maps to exactly one route; anything that matches no rule
// lands on RouteUnrouted instead of being dropped.
type Route string

const (
	RouteMerchantReply Route = "merchant_reply"
	RouteUserCommand   Route = "user_command"
	RouteLocationPing  Route = "location_ping"
	RouteUnrouted      Route = "unrouted"
)

var confirmationKeywords = map[string]struct{}{
	"YES":     {},
	"OK":      {},
	"OKAY":    {},
	"CONFIRM": {},
	"ACCEPT":  {},
}

var commandKeywords = map[string]struct{}{
	"STOP":  {},
	"START": {},
	"HELP":  {},
}

// ResolveRoute selects the route for a receipt. The function is pure and
// total: it depends only on the receipt's content and always returns one of
// the route constants.
func ResolveRoute(r *InboundReceipt) Route {
	keyword := strings.ToUpper(strings.TrimSpace(r.Text))
	if _, ok := confirmationKeywords[keyword]; ok {
		return RouteMerchantReply
	}
	if _, ok := commandKeywords[keyword]; ok {
		return RouteUserCommand
	}
	if r.Location != nil && strings.TrimSpace(r.Text) == "" {
		return RouteLocationPing
	}
	return RouteUnrouted
}
