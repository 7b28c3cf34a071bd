package gateway

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/gamestore-orderflow/internal/httpx"
)

type Handler struct {
	ordersProxy   *ServiceProxy
	paymentsProxy *ServiceProxy
	logger        *slog.Logger
}

func NewHandler(ordersProxy, paymentsProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		ordersProxy:   ordersProxy,
		paymentsProxy: paymentsProxy,
		logger:        logger,
	}
}

// Routes sends order, basket and admin traffic to the orders service and
// payment traffic to the payments service. Paths are forwarded unchanged.
func (h *Handler) Routes(r chi.Router) {
	for _, prefix := range []string{"/orders", "/basket", "/admin"} {
		r.Handle(prefix, h.to(h.ordersProxy))
		r.Handle(prefix+"/*", h.to(h.ordersProxy))
	}
	r.Handle("/payments/*", h.to(h.paymentsProxy))
}

func (h *Handler) to(proxy *ServiceProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.proxyRequest(w, r, proxy, r.URL.Path)
	}
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to forward request", "error", err, "path", path)
		httpx.WriteMessage(r.Context(), w, h.logger, http.StatusBadGateway, "upstream_unavailable", "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.InfoContext(r.Context(), "request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}
