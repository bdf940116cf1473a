package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/go-pos-client/api"
	"github.com/jrsteele09/go-pos-client/devserver"
	"github.com/jrsteele09/go-pos-client/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type testFixture struct {
	app    *cli.App
	out    *bytes.Buffer
	errOut *bytes.Buffer
	url    string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend, err := devserver.New(config.New())
	require.NoError(t, err)
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	f := &testFixture{app: App(), out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, url: ts.URL}
	f.app.Writer = f.out
	f.app.ErrWriter = f.errOut
	t.Cleanup(func() {
		if rt, ok := f.app.Metadata[runtimeKey].(*runtime); ok {
			_ = rt.Close()
		}
	})
	return f
}

func (f *testFixture) run(args ...string) error {
	base := []string{"pos", "--base-url", f.url, "--store", "memory", "--log-level", "error"}
	return f.app.Run(append(base, args...))
}

func TestParseItem(t *testing.T) {
	tests := []struct {
		raw     string
		want    api.SaleItem
		wantErr bool
	}{
		{raw: "Agua pura:5:2", want: api.SaleItem{Name: "Agua pura", Price: 5, Quantity: 2, Subtotal: 10}},
		{raw: "Combo: hot dog:12.5:1", want: api.SaleItem{Name: "Combo: hot dog", Price: 12.5, Quantity: 1, Subtotal: 12.5}},
		{raw: "Agua:5", wantErr: true},
		{raw: "Agua:cinco:1", wantErr: true},
		{raw: "Agua:5:0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseItem(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestApp_LoginOpensHome(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.run("login", "-e", "admin@demo.com", "-p", "123456"))
	require.Contains(t, f.out.String(), `"view": "/home/inventory"`)
	require.Contains(t, f.out.String(), `"email": "admin@demo.com"`)
}

func TestApp_LoginRejected(t *testing.T) {
	f := setupTestFixture(t)

	require.Error(t, f.run("login", "-e", "admin@demo.com", "-p", "wrong"))
	require.Error(t, f.run("whoami"))
}

func TestApp_NavigateWhileSignedOut(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.run("navigate", "/home/sales"))
	require.Contains(t, f.out.String(), `"view": "/login"`)
}

func TestRunShell_KeepsSessionBetweenCommands(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.run("login", "-e", "admin@demo.com", "-p", "123456"))
	f.out.Reset()

	input := strings.Join([]string{
		"categories create Bebidas",
		"sales create --item Agua:5:2 --paid 20",
		"logout",
		"whoami",
		"exit",
	}, "\n") + "\n"
	require.NoError(t, runShell(f.app, strings.NewReader(input), f.out))

	require.Contains(t, f.out.String(), `"name": "Bebidas"`)
	require.Contains(t, f.out.String(), `"change": 10`)
	require.Contains(t, f.out.String(), `"view": "/login"`)
	require.Contains(t, f.errOut.String(), "not signed in")
}
