package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"diagdesk/internal/export"
	"diagdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	logins   int
	bookings []models.NewSlotBooking
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		b.logins++
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.LoginResponse{Message: "ok", Centers: []string{"North"}})
	})
	mux.HandleFunc("POST /guests", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.Guest{
			{GuestName: "Ravi", GuestCode: "G1", Phone: "900", Date: "2024-03-01", Center: "North", Status: "Closed"},
			{GuestName: "Asha", GuestCode: "G2", Phone: "901", Date: "2024-03-02", Center: "North", Status: "Pending"},
		})
	})
	mux.HandleFunc("POST /get-available-slots", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.AvailableSlots{Status: true, Slots: []string{"09:00-10:00"}})
	})
	mux.HandleFunc("POST /slot-bookings", func(w http.ResponseWriter, r *http.Request) {
		var req []models.NewSlotBooking
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.bookings = append(b.bookings, req...)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.MessageResponse{Message: "Slot booked"})
	})
	mux.HandleFunc("POST /investigations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"investigations":[
			{"GuestCode":"G1","GuestName":"Ravi","Center":"North","Date":"2024-03-01","ItemName":"CBC","itemValue":"100"},
			{"GuestCode":"G2","GuestName":"Asha","Center":"North","Date":"2024-03-02","ItemName":"TSH","itemValue":50}
		]}`)
	})
	mux.HandleFunc("GET /centers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `["North","South"]`)
	})
	return mux
}

type fixture struct {
	dir     string
	config  string
	backend *fakeBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := &fakeBackend{}
	upstream := httptest.NewServer(backend.handler())
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`
backend:
  base_url: %s
storage:
  driver: memory
booking:
  settle_delay_ms: 1
  close_delay_ms: 1
  page_size: 1
`, upstream.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))
	return &fixture{dir: dir, config: cfgPath, backend: backend}
}

// run executes one diagctl invocation, as a fresh process would.
func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, e := newRootCommand()
	defer e.close()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config", f.config, "--db", filepath.Join(f.dir, "local.db")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	out, err := f.run(t, "login", "asha", "--password", "pw")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as asha (North)")
}

func TestCLI_SessionSurvivesInvocations(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")

	f.login(t)
	out, err := f.run(t, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "asha (staff): North\n", out)

	out, err = f.run(t, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out.\n", out)

	_, err = f.run(t, "whoami")
	assert.Error(t, err)
}

func TestCLI_LoginPasswordFromStdin(t *testing.T) {
	f := newFixture(t)
	root, e := newRootCommand()
	defer e.close()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader("pw\n"))
	root.SetArgs([]string{"--config", f.config, "--db", filepath.Join(f.dir, "local.db"), "login", "asha"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Logged in as asha")
}

func TestCLI_LoginRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "login", "asha", "--password", "nope")
	assert.Error(t, err)
}

func TestCLI_Guests(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	out, err := f.run(t, "guests", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "G2")
	assert.NotContains(t, out, "Ravi")
	assert.Contains(t, out, "Showing 1 to 1 of 1 results")

	out, err = f.run(t, "guests", "--page", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Asha")
	assert.Contains(t, out, "page 2/2")

	_, err = f.run(t, "guests", "--from", "someday")
	assert.Error(t, err)
}

func TestCLI_CenterForbidden(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	_, err := f.run(t, "guests", "--center", "South")
	assert.Error(t, err)
}

func TestCLI_Book(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	out, err := f.run(t, "book", "G2",
		"--door", "12", "--address", "MG Road", "--pincode", "500001",
		"--age", "34", "--date", "2099-01-15", "--slot", "09:00 - 10:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Slot booked")

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	require.Len(t, f.backend.bookings, 1)
	assert.Equal(t, "G2", f.backend.bookings[0].GuestCode)
	assert.Equal(t, "500001", f.backend.bookings[0].Pincode)
}

func TestCLI_BookValidation(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, err := f.run(t, "book", "G2", "--door", "12", "--address", "MG Road", "--pincode", "500001",
		"--age", "200", "--date", "2099-01-15", "--slot", "09:00 - 10:00")
	assert.Error(t, err)

	_, err = f.run(t, "book", "G2", "--door", "12", "--address", "MG Road", "--pincode", "500001",
		"--date", "2099-01-15", "--slot", "18:00 - 19:00")
	assert.Error(t, err)

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	assert.Empty(t, f.backend.bookings)
}

func TestCLI_Stats(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	out, err := f.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Revenue: 150.00")
	assert.Contains(t, out, "Clients: 2")
}

func TestCLI_ExportGuests(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	target := filepath.Join(f.dir, "out.xlsx")
	out, err := f.run(t, "export", "guests", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	info, err := export.InspectWorkbook(data)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Sheets)
}

func TestCLI_Centers(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	out, err := f.run(t, "centers")
	require.NoError(t, err)
	assert.Equal(t, "North\n", out)
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(" "))
	assert.Equal(t, "x", orDash("x"))
}
