package credentials

// Record is the resolved identity behind an API key, as reported by the
// authority-of-record credential service and cached between requests.
type Record struct {
	ProjectID string   `json:"project_id"`
	TenantID  string   `json:"tenant_id"`
	Scopes    []string `json:"scopes"`
	Status    string   `json:"status"`
}

// ScopeEventsWrite is required to submit events.
const ScopeEventsWrite = "events:write"

// HasScope reports whether the record grants the given scope. Scope checks
// happen at the call site, not inside Resolve, because scope requirements
// vary by endpoint.
func (r *Record) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
