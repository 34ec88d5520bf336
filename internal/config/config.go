package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the portal's runtime configuration, read from NEXUS_*
// environment variables.
type Config struct {
	HTTPAddr    string
	UpstreamURL string
	PublicURL   string
	PGDSN       string
	RolesPath   string
	BrowserURL  string
	RateBurst   int
	RatePerSec  int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Load reads the configuration. PGDSN empty means the in-memory
// session store; BrowserURL empty launches a browser per PDF export.
func Load() Config {
	cfg := Config{
		HTTPAddr:    getenv("NEXUS_HTTP_ADDR", ":8080"),
		UpstreamURL: getenv("NEXUS_UPSTREAM_URL", "http://localhost:3000"),
		PGDSN:       os.Getenv("NEXUS_PG_DSN"),
		RolesPath:   os.Getenv("NEXUS_ROLES_PATH"),
		BrowserURL:  os.Getenv("NEXUS_BROWSER_URL"),
		RateBurst:   getenvInt("NEXUS_RATE_BURST", 20),
		RatePerSec:  getenvInt("NEXUS_RATE_PER_SEC", 10),
	}
	cfg.PublicURL = getenv("NEXUS_PUBLIC_URL", "http://localhost:"+listenPort(cfg.HTTPAddr))
	return cfg
}

// listenPort extracts the port from a listen address for the default
// public URL.
func listenPort(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 && i+1 < len(addr) {
		return addr[i+1:]
	}
	return "8080"
}
