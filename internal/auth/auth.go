// Package auth implements API key authentication and group-based
// permissions.
//
// Keys are stored as bcrypt hashes in the config file. Each key belongs
// to groups, and each group grants a set of permissions of the form
// app_label.verb_resource (strata.view_layer, strata.add_record). The
// permission "*" grants everything.
package auth

import (
	"net/http"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"strata/internal/config"
)

// Key is an authenticated client identity.
type Key struct {
	Name   string
	Groups []string
}

// Authorizer validates API keys and answers permission checks.
type Authorizer struct {
	enabled bool
	keys    []config.APIKey
	groups  map[string][]string
}

// New creates an authorizer from config.
func New(cfg config.AuthConfig) *Authorizer {
	return &Authorizer{
		enabled: cfg.Enabled,
		keys:    cfg.Keys,
		groups:  cfg.Groups,
	}
}

// Enabled reports whether requests must present a key at all.
func (a *Authorizer) Enabled() bool {
	return a.enabled
}

// Identify matches the presented secret against the configured key
// hashes and returns the matching identity.
func (a *Authorizer) Identify(secret string) (*Key, bool) {
	if secret == "" {
		return nil, false
	}
	for _, k := range a.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(secret)) == nil {
			return &Key{Name: k.Name, Groups: k.Groups}, true
		}
	}
	return nil, false
}

// Allowed reports whether the key's groups grant the permission.
func (a *Authorizer) Allowed(key *Key, permission string) bool {
	if key == nil {
		return false
	}
	for _, group := range key.Groups {
		for _, granted := range a.groups[group] {
			if granted == "*" || granted == permission {
				return true
			}
		}
	}
	return false
}

// Permissions returns the sorted permission set the key holds through
// its groups.
func (a *Authorizer) Permissions(key *Key) []string {
	if key == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, group := range key.Groups {
		for _, granted := range a.groups[group] {
			seen[granted] = true
		}
	}
	perms := make([]string, 0, len(seen))
	for p := range seen {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

// KeyFromRequest extracts the presented API key: Authorization Bearer
// token first, X-API-Key header as fallback.
func KeyFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.Header.Get("X-API-Key")
}

// collections that map path segments to permission resources
var resources = map[string]string{
	"layers":    "layer",
	"records":   "record",
	"counters":  "counter",
	"databases": "database",
}

// PermissionForRequest derives the required permission from the request
// shape. The verb follows the method (view/add/change/delete) and the
// resource is the last collection segment in the path, so
// POST /api/layers/roads/records needs app.add_record while
// GET /api/layers/roads/query needs app.view_layer.
func PermissionForRequest(appLabel, method, path string) string {
	verb := "view"
	switch method {
	case http.MethodPost:
		verb = "add"
	case http.MethodPut, http.MethodPatch:
		verb = "change"
	case http.MethodDelete:
		verb = "delete"
	}

	resource := "system"
	for _, segment := range strings.Split(path, "/") {
		if name, ok := resources[segment]; ok {
			resource = name
		}
	}
	return appLabel + "." + verb + "_" + resource
}

// GenerateKeyHash returns the bcrypt hash to store in the config file
// for a new key.
func GenerateKeyHash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
