package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/adapter/http/middleware"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/auth"
)

type recordedRequest struct {
	method  string
	path    string
	query   string
	headers http.Header
	body    map[string]any
}

// fakeAPI answers every request with status and response and records the
// last request it saw.
func fakeAPI(t *testing.T, status int, response any) (*httptest.Server, *recordedRequest) {
	t.Helper()

	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.headers = r.Header.Clone()
		rec.body = nil
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected short unchanged, got %q", got)
	}

	if got := truncate("longerstring", 6); got != "lon..." {
		t.Fatalf("expected lon..., got %q", got)
	}

	if got := truncate("longerstring", 2); got != "lo" {
		t.Fatalf("expected lo, got %q", got)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, struct {
		A int `json:"a"`
	}{A: 1}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}

	expected := "{\n  \"a\": 1\n}\n"
	if buf.String() != expected {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestAccountGetPrintsResponse(t *testing.T) {
	srv, rec := fakeAPI(t, http.StatusOK, map[string]any{"id": "acc-1", "status": "ACTIVE"})

	out, _, err := runCLI(t, "--url", srv.URL, "--token", "tok", "account", "get", "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.method != http.MethodGet || rec.path != "/api/v1/accounts/acc-1" {
		t.Fatalf("unexpected request %s %s", rec.method, rec.path)
	}
	if got := rec.headers.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("expected bearer token, got %q", got)
	}
	if !strings.Contains(out, `"status": "ACTIVE"`) {
		t.Fatalf("expected pretty-printed response, got %q", out)
	}
}

func TestAccountCreditSendsMovement(t *testing.T) {
	srv, rec := fakeAPI(t, http.StatusCreated, map[string]any{"applied": true})

	_, _, err := runCLI(t, "--url", srv.URL, "account", "credit", "acc-1", "--amount", "25.50", "--reference", "DEP-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.method != http.MethodPost || rec.path != "/api/v1/accounts/acc-1/credit" {
		t.Fatalf("unexpected request %s %s", rec.method, rec.path)
	}
	if rec.body["amount"] != "25.50" || rec.body["reference"] != "DEP-1" {
		t.Fatalf("unexpected body %v", rec.body)
	}
}

func TestTransferCreateSendsIdempotencyKey(t *testing.T) {
	srv, rec := fakeAPI(t, http.StatusAccepted, map[string]any{"status": "RECEIVED"})

	_, _, err := runCLI(t, "--url", srv.URL, "transfer", "create",
		"--from", "acc-1", "--to", "acc-2", "--amount", "10", "--client-ref", "ref-42", "--async")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.path != "/api/v1/transfers" {
		t.Fatalf("unexpected path %s", rec.path)
	}
	if got := rec.headers.Get(middleware.IdempotencyKeyHeader); got != "ref-42" {
		t.Fatalf("expected idempotency key ref-42, got %q", got)
	}
	if got := rec.headers.Get("Prefer"); got != "respond-async" {
		t.Fatalf("expected async preference, got %q", got)
	}
	if rec.body["client_reference"] != "ref-42" {
		t.Fatalf("unexpected body %v", rec.body)
	}
}

func TestTransferCreateGeneratesReference(t *testing.T) {
	srv, rec := fakeAPI(t, http.StatusCreated, map[string]any{"status": "COMPLETED"})

	_, _, err := runCLI(t, "--url", srv.URL, "transfer", "create", "--from", "acc-1", "--to", "acc-2", "--amount", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := rec.headers.Get(middleware.IdempotencyKeyHeader)
	if len(key) != 26 {
		t.Fatalf("expected a generated ULID key, got %q", key)
	}
	if rec.headers.Get("Prefer") != "" {
		t.Fatalf("expected no async preference")
	}
}

func TestTransferListQuery(t *testing.T) {
	srv, rec := fakeAPI(t, http.StatusOK, []any{})

	_, _, err := runCLI(t, "--url", srv.URL, "transfer", "list", "acc-1", "--direction", "sent", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.path != "/api/v1/transfers/accounts/acc-1" {
		t.Fatalf("unexpected path %s", rec.path)
	}
	if rec.query != "direction=sent&limit=5&offset=0" {
		t.Fatalf("unexpected query %q", rec.query)
	}
}

func TestAPIErrorIncludesCode(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusUnprocessableEntity, dto.ErrorResponse{
		Error:   "insufficient funds",
		Code:    "insufficient_funds",
		Message: "balance too low",
	})

	_, _, err := runCLI(t, "--url", srv.URL, "account", "debit", "acc-1", "--amount", "1", "--reference", "W-1")
	if err == nil {
		t.Fatal("expected error")
	}

	want := "request failed (status 422, code insufficient_funds): insufficient funds: balance too low"
	if err.Error() != want {
		t.Fatalf("unexpected error %q", err.Error())
	}
}

func TestAPIErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := runCLI(t, "--url", srv.URL, "ledger", "get", "tx-1")
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("expected status 502 error, got %v", err)
	}
}

func TestTokenIssue(t *testing.T) {
	out, stderr, err := runCLI(t, "token", "issue",
		"--secret", "cli-secret", "--service", "transfer-service", "--perm", "account_write", "--perm", "TRANSACTION_WRITE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "expires at") {
		t.Fatalf("expected expiry on stderr, got %q", stderr)
	}

	claims, err := auth.NewJWTManager("cli-secret", 0).Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	principal := claims.Principal()
	if principal.Service != "transfer-service" || principal.Subject != "transfer-service" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if !principal.Has(domain.PermissionAccountWrite) || !principal.Has(domain.PermissionTransactionWrite) {
		t.Fatalf("missing permissions %v", principal.Permissions)
	}
}

func TestTokenIssueRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, _, err := runCLI(t, "token", "issue", "--perm", "ACCOUNT_READ")
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected secret error, got %v", err)
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, _, err := runCLI(t, "migrate", "up")
	if err == nil || !strings.Contains(err.Error(), "--database-url") {
		t.Fatalf("expected database url error, got %v", err)
	}
}
