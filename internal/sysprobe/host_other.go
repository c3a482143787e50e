//go:build !linux

package sysprobe

// Supported reports whether readHost works on this platform.
const Supported = false

func readHost(string) (host, error) {
	return host{}, ErrUnsupported
}
