package config

// HasChanged returns true if the configuration has changed compared to another config.
// This implementation explicitly compares all fields without using reflection.
func HasChanged(a, b *Config) bool {
	if a == nil || b == nil {
		return a != b
	}
	if a.Server.ListenAddress != b.Server.ListenAddress ||
		a.Server.TimeoutSeconds != b.Server.TimeoutSeconds ||
		a.Server.PublicDir != b.Server.PublicDir {
		return true
	}
	if !stringSliceEqual(a.Server.PermittedHosts, b.Server.PermittedHosts) {
		return true
	}
	if a.Proxy.Enabled != b.Proxy.Enabled ||
		a.Proxy.ListenAddress != b.Proxy.ListenAddress ||
		a.Proxy.TimeoutSeconds != b.Proxy.TimeoutSeconds ||
		a.Proxy.Socks5Forward != b.Proxy.Socks5Forward ||
		a.Proxy.InsecureTLS != b.Proxy.InsecureTLS {
		return true
	}
	if !stringPtrEqual(a.Proxy.Socks5Username, b.Proxy.Socks5Username) ||
		!stringPtrEqual(a.Proxy.Socks5Password, b.Proxy.Socks5Password) {
		return true
	}
	if !basicAuthEqual(a.BasicAuth, b.BasicAuth) {
		return true
	}
	if a.Statistics != b.Statistics {
		return true
	}
	if a.Portal != b.Portal {
		return true
	}
	if a.LogLevel != b.LogLevel {
		return true
	}
	return false
}

func basicAuthEqual(a, b *BasicAuthConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
