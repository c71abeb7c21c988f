package subscriptions

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Subscription binds a user to one delivery method and a set of
// subscription groups.
type Subscription struct {
	ID      string   `json:"id"`
	User    string   `json:"user"`
	Groups  []string `json:"groups"`
	Method  string   `json:"method"`
	Address string   `json:"address,omitempty"`
	Status  string   `json:"status"`
}

// Group is a named set of subscribers addressed by alarm definitions.
type Group struct {
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

// Target is one concrete delivery destination resolved from a group.
type Target struct {
	User        string `json:"user"`
	Method      string `json:"method"`
	Address     string `json:"address,omitempty"`
	AddressName string `json:"address_name,omitempty"`
}

// ResolveTargets returns the distinct active (user, method, address)
// triples of the subscriptions belonging to the named group. The
// "none" method never yields a target.
func ResolveTargets(subs []Subscription, group string) []Target {
	seen := make(map[Target]struct{})
	var out []Target
	for _, sub := range subs {
		if sub.Status != StatusActive || sub.Method == "" || sub.Method == "none" {
			continue
		}
		if !containsGroup(sub.Groups, group) {
			continue
		}
		target := Target{User: sub.User, Method: sub.Method, Address: sub.Address}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

func containsGroup(groups []string, name string) bool {
	for _, g := range groups {
		if g == name {
			return true
		}
	}
	return false
}
