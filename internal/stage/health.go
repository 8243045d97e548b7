package stage

// Health is one readiness line on /healthz: the asset store, the network
// classifier, or any other collaborator a session depends on.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports name as ready.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports name as not ready, with detail explaining why.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// WithDetail returns a copy of h annotated with detail.
func (h Health) WithDetail(detail string) Health {
	h.Detail = detail
	return h
}

// AllReady reports whether every record is ready. An empty set is ready.
func AllReady(records []Health) bool {
	for _, h := range records {
		if !h.Ready {
			return false
		}
	}
	return true
}
