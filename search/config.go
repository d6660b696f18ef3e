package search

// Config holds OpenSearch connection settings.
type Config struct {
	// Addresses are the cluster node URLs.
	Addresses []string

	// Username and Password authenticate against the cluster. Both empty
	// disables basic auth.
	Username string
	Password string
}

// DefaultConfig returns settings for a local single-node cluster.
func DefaultConfig() Config {
	return Config{
		Addresses: []string{"http://localhost:9200"},
	}
}

func (c *Config) validate() error {
	if len(c.Addresses) == 0 {
		c.Addresses = []string{"http://localhost:9200"}
	}
	return nil
}
