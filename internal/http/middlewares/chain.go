package middlewares

import "net/http"

// Middleware decora un http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain aplica middlewares de izquierda a derecha: Chain(h, A, B, C) ejecuta
// A -> B -> C -> h, con A como el más externo. El router arma sus cadenas
// base/public/admin con este helper.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	// Orden inverso: el primero de la lista envuelve a todos los demás.
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ChainFunc encadena middlewares sobre un http.HandlerFunc.
func ChainFunc(hf http.HandlerFunc, mws ...Middleware) http.Handler {
	return Chain(hf, mws...)
}
