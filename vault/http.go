package vault

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sellerlens/adsvault/domcache"
	"github.com/sellerlens/adsvault/sellerindex"
)

// RegisterRoutes mounts the ops surface. This is operational tooling for
// humans and probes, not the application API: cache reads, the debug
// seller lookup, stats, and liveness.
func (v *Vault) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", v.handleHealthz)
	r.Get("/stats", v.handleStats)
	r.Get("/sellers/{domain}/{sellerID}", v.handleFindSeller)
	r.Get("/cache/ads-txt/{domain}", v.cacheHandler(v.adsTxt))
	r.Get("/cache/sellers-json/{domain}", v.cacheHandler(v.sellers))
}

func (v *Vault) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (v *Vault) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := v.Stats(r.Context())
	if err != nil {
		v.logger.Error("vault: stats failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (v *Vault) handleFindSeller(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	sellerID := chi.URLParam(r, "sellerID")

	s, err := v.FindSeller(r.Context(), domain, sellerID)
	if errors.Is(err, sellerindex.ErrSellerNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "seller not found"})
		return
	}
	if err != nil {
		v.logger.Error("vault: seller lookup failed",
			"domain", domain, "seller_id", sellerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// cacheHandler serves one cache flavor's entry by domain. Distinguishes
// "never fetched" (404) from recorded failures (the entry itself, with its
// status and error_message) so callers can tell no-data from tried-and-failed.
func (v *Vault) cacheHandler(c *domcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domain := chi.URLParam(r, "domain")
		entry, err := c.GetByDomain(r.Context(), domain)
		if err != nil {
			v.logger.Error("vault: cache read failed", "domain", domain, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache read failed"})
			return
		}
		if entry == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "domain not cached"})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			*domcache.Entry
			Fresh bool `json:"fresh"`
		}{entry, v.Fresh(entry)})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
