package httpapi

// Config defines admin API settings.
type Config struct {
	Addr string
	// BasePath mounts the API below a prefix, e.g. behind a reverse proxy.
	BasePath string
	// AdminToken, when set, is required as a bearer token on /api routes.
	AdminToken string
	// StreamHistory bounds the per-session event replay buffer.
	StreamHistory int
}
