//go:build !unix

package wsserial

// lockFile is a no-op where flock is unavailable; the in-process mutex still applies
func lockFile(path string) (func(), error) {
	return func() {}, nil
}
