package fs

// Config reads typed values from checkpoint metadata. Keys without a
// "general." prefix are resolved under the architecture's namespace.
type Config interface {
	Architecture() string
	String(string, ...string) string
	Uint(string, ...uint32) uint32
	Float(string, ...float32) float32
}
