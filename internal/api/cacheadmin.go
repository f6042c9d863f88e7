package api

import "net/http"

func handleCacheStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_NOT_CONFIGURED", "cache dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "cache_admin"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	stats, err := deps.Cache.Stats(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "STORE_ERROR", "failed to read cache stats", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func handleCacheClearExpired(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_NOT_CONFIGURED", "cache dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "cache_admin"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	removed, err := deps.Cache.ClearExpired(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "STORE_ERROR", "failed to clear expired cache entries", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func handleCacheClearAll(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_NOT_CONFIGURED", "cache dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "cache_admin"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	if err := deps.Cache.ClearAll(r.Context()); err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "STORE_ERROR", "failed to clear cache", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}
