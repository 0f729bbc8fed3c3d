package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/Yiling-J/theine-go"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/stargate-gql/stargate/pkg/engine"
	serverErrors "github.com/stargate-gql/stargate/pkg/server/errors"
)

const (
	persistedQueryExtensionKey = "persistedQuery"
	persistedQueryVersion      = 1

	PersistedQueryNotFound     = "PersistedQueryNotFound"
	PersistedQueryNotSupported = "PersistedQueryNotSupported"

	persistedQueryNotFoundCode     = "PERSISTED_QUERY_NOT_FOUND"
	persistedQueryNotSupportedCode = "PERSISTED_QUERY_NOT_SUPPORTED"
)

// PersistedQueryCache holds query documents keyed by the hex sha256 of their
// text, for automatic persisted queries.
type PersistedQueryCache interface {
	Get(hash string) (string, bool)
	Set(hash, query string)

	// Stop cleans resources.
	Stop()
}

type InMemoryPersistedQueryCache struct {
	cache     *theine.Cache[string, string]
	closeOnce *sync.Once
}

var _ PersistedQueryCache = (*InMemoryPersistedQueryCache)(nil)

// NewInMemoryPersistedQueryCache returns a cache holding at most maxElements documents.
func NewInMemoryPersistedQueryCache(maxElements int64) (*InMemoryPersistedQueryCache, error) {
	cache, err := theine.NewBuilder[string, string](maxElements).Build()
	if err != nil {
		return nil, err
	}

	return &InMemoryPersistedQueryCache{
		cache:     cache,
		closeOnce: &sync.Once{},
	}, nil
}

func (c *InMemoryPersistedQueryCache) Get(hash string) (string, bool) {
	return c.cache.Get(hash)
}

func (c *InMemoryPersistedQueryCache) Set(hash, query string) {
	c.cache.Set(hash, query, 1)
}

func (c *InMemoryPersistedQueryCache) Stop() {
	c.closeOnce.Do(func() {
		c.cache.Close()
	})
}

// DocumentHash returns the hex sha256 of a query document.
func DocumentHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

type persistedQueryExtension struct {
	Version    int    `json:"version"`
	SHA256Hash string `json:"sha256Hash"`
}

// persistedQueryError is answered to the client as a GraphQL error with a 200
// status so that APQ clients retry with the full query text.
type persistedQueryError struct {
	message string
	code    string
}

func (e *persistedQueryError) Error() string {
	return e.message
}

func (e *persistedQueryError) response() *engine.Response {
	return &engine.Response{
		Errors: gqlerror.List{{
			Message:    e.message,
			Extensions: map[string]any{"code": e.code},
		}},
	}
}

// resolvePersistedQuery fills in the query text of an APQ request, or
// registers it when the client sent both the text and the hash. Requests
// without the extension are left untouched.
func (s *Server) resolvePersistedQuery(req *engine.Request) error {
	raw, ok := req.Extensions[persistedQueryExtensionKey]
	if !ok {
		return nil
	}

	var ext persistedQueryExtension
	buf, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(buf, &ext)
	}
	if err != nil {
		return serverErrors.NewEncodedError(serverErrors.MalformedRequest, "invalid persistedQuery extension")
	}

	if s.persistedQueries == nil {
		return &persistedQueryError{message: PersistedQueryNotSupported, code: persistedQueryNotSupportedCode}
	}

	if ext.Version != persistedQueryVersion {
		return serverErrors.NewEncodedError(serverErrors.MalformedRequest, "unsupported persistedQuery version")
	}

	hash := strings.ToLower(ext.SHA256Hash)
	if hash == "" {
		return serverErrors.NewEncodedError(serverErrors.MalformedRequest, "persistedQuery extension has no sha256Hash")
	}

	if req.Query == "" {
		query, ok := s.persistedQueries.Get(hash)
		if !ok {
			return &persistedQueryError{message: PersistedQueryNotFound, code: persistedQueryNotFoundCode}
		}
		req.Query = query
		return nil
	}

	if DocumentHash(req.Query) != hash {
		return serverErrors.NewEncodedError(serverErrors.MalformedRequest, "provided sha does not match query")
	}

	s.persistedQueries.Set(hash, req.Query)
	return nil
}
