package appops

// cacheState tracks whether a cached asset can be trusted.
type cacheState int

const (
	notLoaded cacheState = iota
	loadedValid
	loadedStale // loaded while the artifact was unavailable
)

func (s cacheState) String() string {
	switch s {
	case loadedValid:
		return "valid"
	case loadedStale:
		return "stale"
	default:
		return "not-loaded"
	}
}

// assetCache holds one lazily loaded asset. A valid value is returned as-is.
// Otherwise the asset is (re)loaded when the artifact is present, or the
// fallback is stored and marked stale so the next access retries the load.
type assetCache[T any] struct {
	state cacheState
	value T
}

func (c *assetCache[T]) get(present func() bool, load func() T, fallback func() T) T {
	if c.state == loadedValid {
		return c.value
	}
	if present() {
		c.value = load()
		c.state = loadedValid
		return c.value
	}
	c.value = fallback()
	c.state = loadedStale
	return c.value
}

// peek returns the cached value without loading.
func (c *assetCache[T]) peek() (T, cacheState) {
	return c.value, c.state
}
