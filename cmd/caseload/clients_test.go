package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hyperengineering/caseload/internal/api"
	"github.com/hyperengineering/caseload/internal/store"
	"github.com/hyperengineering/caseload/internal/types"
)

const testAPIKey = "cli-test-key"

// resetFlags restores package-level flag variables to their defaults.
// Cobra parses into these variables, so stale values from previous tests
// would leak if not reset.
func resetFlags() {
	clientsDBPath = ""
	clientsServer = ""
	clientsAPIKey = ""
	clientsJSONOutput = false
	listStatus = ""
	listSearch = ""
	listPage = 1
	listPageSize = 50
	importClientID = ""
	deleteForce = false
	snapshotDBPath = ""
	snapshotDir = ""
}

// executeCmd runs the root command with captured output and piped stdin.
func executeCmd(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("CASELOAD_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	resetFlags()

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetIn(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

// clientsCmdAt runs a clients subcommand against the database at dbPath.
func clientsCmdAt(t *testing.T, dbPath string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	full := append([]string{"clients"}, args...)
	full = append(full, "--db", dbPath)
	return executeCmd(t, "", full...)
}

func writeForm(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write form: %v", err)
	}
	return path
}

func openStore(t *testing.T, dbPath string) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const fullForm = `
status: waitlist
child_first_name: Ava
child_last_name: Lopez
child_date_of_birth: "2019-04-02"
guardians:
  - first_name: Dana
    last_name: Lopez
    relationship: mother
    email: dana@example.com
    is_primary: true
  - first_name: ""
locations:
  - label: Home
    street_address: 12 Elm St
    city: Fresno
    postal_code: "93701"
insurances:
  - insurance_name: Blue Shield
    member_id: BS-100
    is_primary: true
`

// --- Import Tests ---

func TestClientsImport_CreatesClientAndChildren(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")

	stdout, stderr, err := clientsCmdAt(t, dbPath, "import", writeForm(t, fullForm))
	if err != nil {
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "Created client") || !strings.Contains(stdout, "/clients/") {
		t.Errorf("stdout = %q, want created client with detail path", stdout)
	}
	// The empty guardian row is skipped.
	if !strings.Contains(stdout, "Saved 3 child records") {
		t.Errorf("stdout = %q, want 3 child records", stdout)
	}

	s := openStore(t, dbPath)
	list, err := s.ListClients(context.Background(), types.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Clients) != 1 {
		t.Fatalf("clients = %d, want 1", len(list.Clients))
	}
	detail, err := s.GetClient(context.Background(), list.Clients[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Status != types.StatusWaitlist {
		t.Errorf("status = %q, want waitlist", detail.Status)
	}
	if len(detail.Guardians) != 1 || len(detail.Locations) != 1 || len(detail.Insurances) != 1 {
		t.Errorf("children = %d/%d/%d, want 1/1/1",
			len(detail.Guardians), len(detail.Locations), len(detail.Insurances))
	}
}

func TestClientsImport_ChildFailureReported(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	form := `
child_first_name: Ben
guardians:
  - first_name: Sam
    email: not-an-email
locations:
  - street_address: 1 Main St
    city: Visalia
`
	stdout, stderr, err := clientsCmdAt(t, dbPath, "import", writeForm(t, form))
	if err == nil {
		t.Fatal("expected error for failed child row, got nil")
	}
	if !strings.Contains(err.Error(), "1 child records failed") {
		t.Errorf("error = %q, want failure count", err.Error())
	}
	// The client and the valid row are still saved.
	if !strings.Contains(stdout, "Created client") || !strings.Contains(stdout, "Saved 1 child records") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "guardians[0]: email must be a valid email") {
		t.Errorf("stderr = %q, want the guardian failure", stderr)
	}
}

func TestClientsImport_ParentFailureWritesNothing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	form := `
status: archived
child_first_name: Cy
guardians:
  - first_name: Pat
`
	_, _, err := clientsCmdAt(t, dbPath, "import", writeForm(t, form))
	if err == nil {
		t.Fatal("expected error for invalid status, got nil")
	}
	if !strings.HasPrefix(err.Error(), "status must be one of") {
		t.Errorf("error = %q, want the validation message unchanged", err.Error())
	}

	s := openStore(t, dbPath)
	stats, err := s.GetStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.ClientCount != 0 {
		t.Errorf("ClientCount = %d, want 0", stats.ClientCount)
	}
}

func TestClientsImport_EditMode(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	s := openStore(t, dbPath)
	c, err := s.CreateClient(context.Background(), types.ClientFields{ChildFirstName: "Old"})
	if err != nil {
		t.Fatal(err)
	}

	form := "child_first_name: New\nstatus: active\n"
	stdout, _, err := clientsCmdAt(t, dbPath, "import", writeForm(t, form), "--client-id", c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, `Updated client "`+c.ID+`"`) {
		t.Errorf("stdout = %q, want updated client", stdout)
	}

	detail, err := s.GetClient(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if detail.ChildFirstName != "New" || detail.Status != types.StatusActive {
		t.Errorf("client = %q/%q, want New/active", detail.ChildFirstName, detail.Status)
	}
}

func TestClientsImport_JSONOutput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	form := "child_first_name: Dee\nguardians:\n  - first_name: Lee\n    phone: call me\n"

	stdout, _, err := clientsCmdAt(t, dbPath, "import", writeForm(t, form), "--json")
	if err == nil {
		t.Fatal("expected partial-save error")
	}

	var result struct {
		ClientID    string `json:"client_id"`
		Path        string `json:"path"`
		Written     int    `json:"written"`
		ChildErrors []struct {
			Kind  string `json:"kind"`
			Index int    `json:"index"`
			Op    string `json:"op"`
			Error string `json:"error"`
		} `json:"child_errors"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw: %s", err, stdout)
	}
	if result.Path != "/clients/"+result.ClientID {
		t.Errorf("path = %q, want detail path of %q", result.Path, result.ClientID)
	}
	if len(result.ChildErrors) != 1 {
		t.Fatalf("child_errors = %d, want 1", len(result.ChildErrors))
	}
	ce := result.ChildErrors[0]
	if ce.Kind != "guardians" || ce.Index != 0 || ce.Op != "create" {
		t.Errorf("child error = %+v", ce)
	}
	if ce.Error != "phone must be a valid phone number" {
		t.Errorf("child error message = %q", ce.Error)
	}
}

func TestClientsImport_InvalidYAML(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	_, _, err := clientsCmdAt(t, dbPath, "import", writeForm(t, "guardians: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "parse form") {
		t.Errorf("error = %v, want parse form error", err)
	}
}

func TestClientsImport_MissingFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	_, _, err := clientsCmdAt(t, dbPath, "import", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read form") {
		t.Errorf("error = %v, want read form error", err)
	}
}

// --- List Tests ---

func TestClientsList_Empty(t *testing.T) {
	stdout, _, err := clientsCmdAt(t, filepath.Join(t.TempDir(), "caseload.db"), "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "No clients found.") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestClientsList_TableAndStatusFilter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	s := openStore(t, dbPath)
	ctx := context.Background()
	for _, f := range []types.ClientFields{
		{ChildFirstName: "Ava", Status: types.StatusActive},
		{ChildFirstName: "Ben", Status: types.StatusWaitlist},
		{ChildFirstName: "Cal", Status: types.StatusActive},
	} {
		if _, err := s.CreateClient(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	stdout, _, err := clientsCmdAt(t, dbPath, "list", "--status", "active")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "ID") || !strings.Contains(stdout, "STATUS") {
		t.Errorf("stdout = %q, want table header", stdout)
	}
	if !strings.Contains(stdout, "Ava") || !strings.Contains(stdout, "Cal") {
		t.Errorf("stdout = %q, want active clients", stdout)
	}
	if strings.Contains(stdout, "Ben") {
		t.Errorf("stdout = %q, waitlisted client should be filtered out", stdout)
	}
	// Counts stay unfiltered.
	if !strings.Contains(stdout, "total 3, waitlist 1, active 2") {
		t.Errorf("stdout = %q, want unfiltered counts", stdout)
	}
}

func TestClientsList_JSONOutput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	s := openStore(t, dbPath)
	if _, err := s.CreateClient(context.Background(), types.ClientFields{ChildFirstName: "Ava"}); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := clientsCmdAt(t, dbPath, "list", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list types.ClientList
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw: %s", err, stdout)
	}
	if len(list.Clients) != 1 || list.Counts.Total != 1 {
		t.Errorf("list = %+v", list)
	}
	if list.Counts.ByStatus[types.StatusInquiry] != 1 {
		t.Errorf("inquiry count = %d, want 1", list.Counts.ByStatus[types.StatusInquiry])
	}
}

func TestClientsList_InvalidStatus(t *testing.T) {
	_, _, err := clientsCmdAt(t, filepath.Join(t.TempDir(), "caseload.db"), "list", "--status", "active,gone")
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
	if !strings.Contains(err.Error(), "status must be one of") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestParseListFilter(t *testing.T) {
	f, err := parseListFilter(" active , waitlist,", "  ava ", 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := types.ListFilter{
		Statuses: []types.ClientStatus{types.StatusActive, types.StatusWaitlist},
		Search:   "ava",
		Page:     2,
		PageSize: 10,
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("parseListFilter() mismatch (-want +got):\n%s", diff)
	}
}

// --- Delete Tests ---

func TestClientsDelete_ForceUpdatesCounts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	s := openStore(t, dbPath)
	ctx := context.Background()
	a, err := s.CreateClient(ctx, types.ClientFields{ChildFirstName: "Ava", Status: types.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateClient(ctx, types.ClientFields{ChildFirstName: "Ben", Status: types.StatusActive}); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := clientsCmdAt(t, dbPath, "delete", a.ID, "--force")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, `Deleted client "`+a.ID+`"`) {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stdout, "Remaining: total 1, active 1") {
		t.Errorf("stdout = %q, want adjusted counts", stdout)
	}

	if _, err := s.GetClient(ctx, a.ID); err == nil {
		t.Error("deleted client should not be returned")
	}
}

func TestClientsDelete_ConfirmationMismatchAborts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	s := openStore(t, dbPath)
	a, err := s.CreateClient(context.Background(), types.ClientFields{ChildFirstName: "Ava"})
	if err != nil {
		t.Fatal(err)
	}

	_, stderr, err := executeCmd(t, "wrong-id\n", "clients", "delete", a.ID, "--db", dbPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Aborted") {
		t.Errorf("stderr = %q, want abort message", stderr)
	}
	if _, err := s.GetClient(context.Background(), a.ID); err != nil {
		t.Errorf("client should survive an aborted delete: %v", err)
	}
}

func TestClientsDelete_ConfirmationMatchDeletes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "caseload.db")
	s := openStore(t, dbPath)
	a, err := s.CreateClient(context.Background(), types.ClientFields{ChildFirstName: "Ava"})
	if err != nil {
		t.Fatal(err)
	}

	stdout, _, err := executeCmd(t, a.ID+"\n", "clients", "delete", a.ID, "--db", dbPath, "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result struct {
		ID      string             `json:"id"`
		Deleted bool               `json:"deleted"`
		Counts  types.ClientCounts `json:"counts"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw: %s", err, stdout)
	}
	if result.ID != a.ID || !result.Deleted || result.Counts.Total != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestClientsDelete_UnknownClient(t *testing.T) {
	_, _, err := clientsCmdAt(t, filepath.Join(t.TempDir(), "caseload.db"), "delete", "01ARZ3NDEKTSV4RRFFQ69G5FAV", "--force")
	if err == nil {
		t.Fatal("expected error for unknown client")
	}
	if !strings.Contains(err.Error(), "client not found") {
		t.Errorf("error = %q", err.Error())
	}
}

// --- Remote Tests ---

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	s := openStore(t, ":memory:")
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(s, testAPIKey, "test")))
	t.Cleanup(srv.Close)
	return srv, s
}

func TestClientsImport_RemoteServer(t *testing.T) {
	srv, s := newTestServer(t)

	stdout, stderr, err := executeCmd(t, "", "clients", "import", writeForm(t, fullForm),
		"--server", srv.URL, "--api-key", testAPIKey)
	if err != nil {
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "Saved 3 child records") {
		t.Errorf("stdout = %q", stdout)
	}

	stats, err := s.GetStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.ClientCount != 1 {
		t.Errorf("ClientCount = %d, want 1", stats.ClientCount)
	}
}

func TestClientsList_RemoteServerRequiresKey(t *testing.T) {
	srv, _ := newTestServer(t)
	t.Setenv("CASELOAD_API_KEY", "")

	_, _, err := executeCmd(t, "", "clients", "list", "--server", srv.URL)
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
}

func TestClientsDelete_RemoteServer(t *testing.T) {
	srv, s := newTestServer(t)
	a, err := s.CreateClient(context.Background(), types.ClientFields{ChildFirstName: "Ava", Status: types.StatusWaitlist})
	if err != nil {
		t.Fatal(err)
	}

	stdout, _, err := executeCmd(t, "", "clients", "delete", a.ID, "--force",
		"--server", srv.URL, "--api-key", testAPIKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "Remaining: total 0") {
		t.Errorf("stdout = %q", stdout)
	}
}

// --- Snapshot Tests ---

func TestSnapshotCreate_WritesLocalFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "caseload.db")
	openStore(t, dbPath)

	snapDir := filepath.Join(dir, "snaps")
	stdout, _, err := executeCmd(t, "", "snapshot", "create", "--db", dbPath, "--dir", snapDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, filepath.Join(snapDir, "current.db")) {
		t.Errorf("stdout = %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(snapDir, "current.db")); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}
}

func TestSnapshotURL_NotConfigured(t *testing.T) {
	t.Setenv("CASELOAD_SNAPSHOT_BUCKET", "")
	_, _, err := executeCmd(t, "", "snapshot", "url")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("error = %v, want not configured", err)
	}
}
