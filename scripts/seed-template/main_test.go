package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/internal/http/middleware"
)

func TestRunPublishesTemplate(t *testing.T) {
	tenant := uuid.NewString()
	var got struct {
		Version   int                 `json:"version"`
		Questions []briefing.Question `json:"questions"`
	}
	srv := httptest.NewServer(middleware.AdminJWT("seed-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.TenantFromContext(r.Context())
		assert.Equal(t, tenant, id.String())
		assert.True(t, strings.HasPrefix(r.URL.Path, "/admin/templates/6f1c2d9e-4b7a-4c1e-9a55-0d3f8e2b7c11/"))
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&got)) {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		rev, err := briefing.NewRevision(uuid.New(), uuid.New(), got.Version, got.Questions)
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rev)
	})))
	defer srv.Close()

	err := run(context.Background(), "testdata/residential.json", srv.URL, "seed-secret", tenant, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Len(t, got.Questions, 6)
}

func TestRunRequiresCredentials(t *testing.T) {
	err := run(context.Background(), "testdata/residential.json", "", "", "", http.DefaultClient)
	require.Error(t, err)
}

func TestRunSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := run(context.Background(), "testdata/residential.json", srv.URL, "s", uuid.NewString(), srv.Client())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
