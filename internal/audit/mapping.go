package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Member routes are audited as the membership lifecycle events rather than generic verbs.
const membersItemRoute = "/v1/organizations/{orgID}/members/{userID}"

// ParseRoute returns action and resource for an HTTP method and mux path template
// (e.g. POST /v1/organizations/{orgID}/invitations -> create invitation).
// Resource is the last literal path segment, singularized; action is derived from the method.
func ParseRoute(method, template string) ActionResource {
	if template == membersItemRoute {
		switch method {
		case http.MethodPatch:
			return ActionResource{Action: ActionRoleChanged, Resource: "user"}
		case http.MethodDelete:
			return ActionResource{Action: ActionUserRemoved, Resource: "user"}
		}
	}
	segments := strings.Split(strings.Trim(template, "/"), "/")
	resource := ""
	last := ""
	for _, s := range segments {
		if strings.HasPrefix(s, "{") {
			last = "param"
			continue
		}
		if s != "" && s != "v1" {
			resource = s
			last = "literal"
		}
	}
	if resource == "" {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	// Trailing verb segments such as .../redeem or .../accept name the action themselves.
	if ar, ok := routeVerbs[resource]; ok && last == "literal" {
		return ar
	}
	return ActionResource{Action: methodToAction(method, last == "param"), Resource: singular(resource)}
}

var routeVerbs = map[string]ActionResource{
	"current":      {Action: "get", Resource: "organization"},
	"redeem":       {Action: "redeem", Resource: "coupon"},
	"expire":       {Action: "expire", Resource: "coupon"},
	"accept":       {Action: "accept", Resource: "invitation"},
	"organization": {Action: ActionOrgSwitched, Resource: "session"},
	"login":        {Action: ActionLogin, Resource: "session"},
	"logout":       {Action: ActionLogout, Resource: "session"},
	"register":     {Action: "register", Resource: "user"},
}

func methodToAction(method string, item bool) string {
	switch method {
	case http.MethodGet:
		if item {
			return "get"
		}
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

func singular(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	default:
		return s
	}
}
