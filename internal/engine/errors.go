package engine

import "errors"

// errNotReady is returned by Estimator before the first snapshot (from
// cache or a live poll) has been loaded.
var errNotReady = errors.New("engine: no snapshot loaded yet")
