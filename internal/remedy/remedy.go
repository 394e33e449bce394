// Package remedy dispatches remediation orders produced by diagnosis.
// Direct orders patch the diagram source in-process; delegate orders
// hand a skill brief to an external responder.
package remedy

import "context"

// Route selects how an order is carried out.
type Route string

const (
	// RouteDirect patches the diagram source in-process.
	RouteDirect Route = "direct"
	// RouteDelegate hands the order to an external skill responder.
	RouteDelegate Route = "delegate"
	// RouteNone means diagnosis found nothing actionable.
	RouteNone Route = "none"
)

// Valid reports whether r is a known route.
func (r Route) Valid() bool {
	switch r {
	case RouteDirect, RouteDelegate, RouteNone:
		return true
	}
	return false
}

// Order is one remediation request: which defect to fix, how to route
// it, and the diagram source to patch when the route is direct.
type Order struct {
	Case         string   `json:"case" yaml:"case"`
	Iteration    int      `json:"iteration" yaml:"iteration"`
	Route        Route    `json:"route" yaml:"route"`
	Skill        string   `json:"skill,omitempty" yaml:"skill,omitempty"`
	Pass         string   `json:"pass,omitempty" yaml:"pass,omitempty"`
	Defect       string   `json:"defect,omitempty" yaml:"defect,omitempty"`
	FixHints     []string `json:"fix_hints,omitempty" yaml:"fix_hints,omitempty"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Source       string   `json:"source,omitempty" yaml:"source,omitempty"`
}

// Outcome reports what a dispatcher did with an order. Applied means
// the remediation ran; Source carries the patched diagram source when
// the fix produced one.
type Outcome struct {
	Applied bool   `json:"applied"`
	Source  string `json:"source,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Dispatcher carries out remediation orders.
type Dispatcher interface {
	Dispatch(ctx context.Context, order Order) (Outcome, error)
}

// Mux routes orders to a direct or delegate dispatcher by the order's
// route. Missing dispatchers degrade to a no-op outcome so the loop can
// keep iterating without that remediation path.
type Mux struct {
	direct   Dispatcher
	delegate Dispatcher
}

// NewMux returns a Mux with the given per-route dispatchers. Either may
// be nil.
func NewMux(direct, delegate Dispatcher) *Mux {
	return &Mux{direct: direct, delegate: delegate}
}

// Dispatch routes the order. RouteNone orders are acknowledged without
// action.
func (m *Mux) Dispatch(ctx context.Context, order Order) (Outcome, error) {
	var d Dispatcher
	switch order.Route {
	case RouteDirect:
		d = m.direct
	case RouteDelegate:
		d = m.delegate
	case RouteNone:
		return Outcome{Note: "nothing to dispatch"}, nil
	}
	if d == nil {
		return Outcome{Note: "route " + string(order.Route) + " has no dispatcher"}, nil
	}
	return d.Dispatch(ctx, order)
}
