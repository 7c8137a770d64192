// Command seed-template publishes a questionnaire revision through the admin API.
//
//	ADMIN_JWT_SECRET=... TENANT_ID=... go run ./scripts/seed-template testdata/residential.json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/internal/http/middleware"
)

type templateFile struct {
	TemplateID uuid.UUID           `json:"template_id"`
	Name       string              `json:"name"`
	Version    int                 `json:"version"`
	Questions  []briefing.Question `json:"questions"`
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-template <template.json>")
		os.Exit(1)
	}
	if err := run(context.Background(), os.Args[1], os.Getenv("API_URL"), os.Getenv("ADMIN_JWT_SECRET"), os.Getenv("TENANT_ID"), http.DefaultClient); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path, apiURL, secret, tenant string, client *http.Client) error {
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	if secret == "" || tenant == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET and TENANT_ID are required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var tpl templateFile
	if err := json.Unmarshal(data, &tpl); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	// Validate locally so a bad file fails before any request.
	if _, err := briefing.NewRevision(uuid.New(), tpl.TemplateID, tpl.Version, tpl.Questions); err != nil {
		return err
	}

	token, err := mintToken(secret, tenant)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"version": tpl.Version, "questions": tpl.Questions})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/admin/templates/%s/revisions", strings.TrimRight(apiURL, "/"), tpl.TemplateID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("publish: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var rev briefing.Revision
	if err := json.Unmarshal(respBody, &rev); err != nil {
		return fmt.Errorf("decode revision: %w", err)
	}
	fmt.Printf("published %q v%d as revision %s (%d questions)\n", tpl.Name, rev.Version, rev.ID, rev.Len())
	return nil
}

func mintToken(secret, tenant string) (string, error) {
	claims := middleware.AdminClaims{
		TenantID: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "seed-template",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
