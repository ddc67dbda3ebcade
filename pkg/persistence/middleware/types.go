package middleware

import "github.com/aretw0/plotlink/pkg/ports"

// Middleware allows wrapping a PlotStore to add behavior.
type Middleware func(ports.PlotStore) ports.PlotStore

// Chain wraps store with mws; the first middleware is the outermost.
func Chain(store ports.PlotStore, mws ...Middleware) ports.PlotStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
