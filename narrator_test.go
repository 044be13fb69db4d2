package narrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-narrator/resource"
	"github.com/ethereum-optimism/infra/op-narrator/service"
	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// mockFormatter records the sessions it is asked to format
type mockFormatter struct {
	mock.Mock
	calls chan *types.Session
}

func newMockFormatter() *mockFormatter {
	m := &mockFormatter{calls: make(chan *types.Session, 100)}
	m.On("FormatSession", mock.Anything).Return(nil)
	return m
}

func (m *mockFormatter) FormatSession(session *types.Session) error {
	args := m.Called(session)
	select {
	case m.calls <- session:
	default:
	}
	return args.Error(0)
}

// failingFactory never hands out a resource
type failingFactory struct{}

func (failingFactory) Create(ctx context.Context, driver resource.DriverType) (resource.Resource, error) {
	return nil, errors.New("no sessions left")
}

func newShopServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/{lang}/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>Shop</title></head><body>Welcome (%s)</body></html>", r.PathValue("lang"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writePlan(t *testing.T, baseURL, title string) string {
	t.Helper()
	doc := fmt.Sprintf(`
version: v1.0.0
cases:
  - title: Storefront
    base_url: %s/
    instances:
      - name: en
        params: {lang: en}
      - name: de
        params: {lang: de}
    steps:
      - name: open
        action: open
        target: /${lang}/
      - name: titled
        action: expect_title
        value: %s
`, baseURL, title)
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

func testConfig(t *testing.T, planFile string) *Config {
	t.Helper()
	return &Config{
		PlanFile:    planFile,
		OutputDir:   t.TempDir(),
		Driver:      resource.DriverHTTP,
		Reporters:   []string{"json"},
		Parallelism: 2,
		RunOnce:     true,
		HTTPTimeout: 5 * time.Second,
		Log:         testLogger(),
	}
}

func TestNarrator_RunOncePasses(t *testing.T) {
	srv := newShopServer(t)
	cfg := testConfig(t, writePlan(t, srv.URL, "Shop"))

	shutdown := make(chan error, 1)
	formatter := newMockFormatter()
	n, err := New(context.Background(), cfg, "test", func(err error) { shutdown <- err }, WithFormatter(formatter))
	require.NoError(t, err)

	require.NoError(t, n.Start(context.Background()))
	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback was not called")
	}

	session := n.LastSession()
	require.NotNil(t, session)
	assert.Equal(t, types.RunStatusPassed, session.Status())
	assert.Len(t, session.Runs, 2)
	assert.Equal(t, cfg.PlanFile, session.Plan)
	formatter.AssertNumberOfCalls(t, "FormatSession", 1)

	reports, err := filepath.Glob(filepath.Join(cfg.OutputDir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	require.NoError(t, n.Stop(context.Background()))
	assert.True(t, n.Stopped())
}

func TestNarrator_RunOnceFailure(t *testing.T) {
	srv := newShopServer(t)
	cfg := testConfig(t, writePlan(t, srv.URL, "Boutique"))

	called := make(chan struct{}, 1)
	n, err := New(context.Background(), cfg, "test", func(error) { called <- struct{}{} }, WithFormatter(newMockFormatter()))
	require.NoError(t, err)

	err = n.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Contains(t, err.Error(), "2 failed")

	select {
	case <-called:
		t.Fatal("shutdown callback must not be called for failing sessions")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, n.Stop(context.Background()))
}

func TestNarrator_ResourceUnavailable(t *testing.T) {
	cfg := testConfig(t, writePlan(t, "http://shop.invalid", "Shop"))
	svc := service.New(service.Config{}, testLogger())

	n, err := New(context.Background(), cfg, "test", func(error) {},
		WithFormatter(newMockFormatter()),
		WithResourceFactory(failingFactory{}),
		WithService(svc))
	require.NoError(t, err)

	err = n.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.Contains(t, err.Error(), "2 of 2 runs could not execute")

	session := n.LastSession()
	require.NotNil(t, session)
	assert.Empty(t, session.Runs)
	assert.Len(t, session.Errors, 2)

	rec := httptest.NewRecorder()
	svc.Healthz.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, n.Stop(context.Background()))
}

func TestNarrator_Continuous(t *testing.T) {
	doc := `
version: v1.0.0
cases:
  - title: Ping
    base_url: http://shop.local/
    steps:
      - name: home
        action: open_home
      - name: ok
        action: expect_status
        value: "200"
`
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg := testConfig(t, path)
	cfg.Driver = resource.DriverNoop
	cfg.RunOnce = false
	cfg.RunInterval = 10 * time.Millisecond

	formatter := newMockFormatter()
	n, err := New(context.Background(), cfg, "test", func(error) {}, WithFormatter(formatter))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Start(ctx))
	assert.False(t, n.Stopped())

	for i := 0; i < 3; i++ {
		select {
		case session := <-formatter.calls:
			assert.Equal(t, types.RunStatusPassed, session.Status())
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for session %d", i+1)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, n.Stop(stopCtx))
	assert.True(t, n.Stopped())
	require.NoError(t, n.WaitForShutdown(stopCtx))
}

func TestNew_Errors(t *testing.T) {
	srv := newShopServer(t)
	planFile := writePlan(t, srv.URL, "Shop")

	_, err := New(context.Background(), nil, "test", nil)
	assert.ErrorContains(t, err, "config is required")

	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = New(context.Background(), cfg, "test", nil)
	assert.ErrorContains(t, err, "failed to load plan")

	cfg = testConfig(t, planFile)
	cfg.Cases = []string{"Checkout"}
	_, err = New(context.Background(), cfg, "test", nil)
	assert.ErrorContains(t, err, `case "Checkout" not found`)

	cfg = testConfig(t, planFile)
	cfg.Driver = "selenium"
	_, err = New(context.Background(), cfg, "test", nil)
	assert.ErrorContains(t, err, `unsupported driver "selenium"`)

	cfg = testConfig(t, planFile)
	cfg.Reporters = []string{"pdf"}
	_, err = New(context.Background(), cfg, "test", nil)
	assert.ErrorContains(t, err, `unknown reporter "pdf"`)
}
