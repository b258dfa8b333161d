package idverify

import "net/http"

// onlyMethod restricts h to a single HTTP method, answering 405 otherwise,
// matching ServeMux "METHOD /path" patterns (Go 1.22+).
func onlyMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
