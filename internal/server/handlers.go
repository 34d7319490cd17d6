package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// pathUUID parses a UUID path value
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

// decodeBody decodes an optional JSON body into dst and validates struct tags.
// An empty body leaves dst unchanged.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &ErrValidation{Message: "Invalid request body: " + err.Error()}
	}
	if err := s.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

// queryInputs reads run inputs from query parameters. A repeated name keeps
// its last value.
func queryInputs(r *http.Request) map[string]any {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]any, len(q))
	for name, values := range q {
		name = strings.TrimSpace(name)
		if name == "" || len(values) == 0 {
			continue
		}
		out[name] = values[len(values)-1]
	}
	return out
}

// handleListSources returns the data source catalog
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.registry.ListSources(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"sources": sources})
}
