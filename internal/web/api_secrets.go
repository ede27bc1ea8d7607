package web

import (
	"encoding/json"
	"net/http"
)

// Secrets hold provider credentials (LLM API keys). Values are sealed by the
// vault before they reach the store and never appear in list responses.

func (s *Server) registerSecretAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("PUT /api/secrets/{name}", s.putSecret)
	mux.HandleFunc("GET /api/secrets/{name}", s.getSecret)
	mux.HandleFunc("DELETE /api/secrets/{name}", s.deleteSecret)
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListSecretNames()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	jsonResponse(w, names)
}

func (s *Server) putSecret(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		jsonError(w, "vault not configured", http.StatusServiceUnavailable)
		return
	}

	name := r.PathValue("name")
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Value == "" {
		jsonError(w, "value is required", http.StatusBadRequest)
		return
	}

	sealed, err := s.vault.Seal([]byte(body.Value))
	if err != nil {
		jsonError(w, "encryption failed", http.StatusInternalServerError)
		return
	}
	if err := s.store.SaveSecret(name, sealed); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "saved", "name": name})
}

func (s *Server) getSecret(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		jsonError(w, "vault not configured", http.StatusServiceUnavailable)
		return
	}

	name := r.PathValue("name")
	sealed, err := s.store.GetSecret(name)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sealed == nil {
		jsonError(w, "secret not found", http.StatusNotFound)
		return
	}

	value, err := s.vault.Open(sealed)
	if err != nil {
		jsonError(w, "decryption failed", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"name": name, "value": string(value)})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSecret(r.PathValue("name")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}
