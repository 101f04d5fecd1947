package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/adapters/storage"
)

func writeRunConfig(t *testing.T, dbPath, extra string) string {
	t.Helper()
	body := fmt.Sprintf(`
tokens:
  WETH: { address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", decimals: 18 }
  USDC: { address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", decimals: 6 }
pairs:
  - { base: WETH, quote: USDC }
venues:
  - { name: a, kind: static, prices: { WETH/USDC: "3000" } }
  - { name: b, kind: static, prices: { WETH/USDC: "3060" } }
storage: { driver: sqlite, dsn: %q }
%s
`, dbPath, extra)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_OncePersistsAndExitsZero(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "polyarb.db")
	cfgPath := writeRunConfig(t, dbPath, "")

	assert.Equal(t, 0, run([]string{"-config", cfgPath, "-once"}))

	db, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer db.Close()
	opps, err := db.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "a", opps[0].BuyVenue)
}

func TestRun_DryRunDoesNotPersist(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "polyarb.db")
	cfgPath := writeRunConfig(t, dbPath, "")

	assert.Equal(t, 0, run([]string{"-config", cfgPath, "-once", "-dry-run"}))
	assert.NoFileExists(t, dbPath)
}

func TestRun_ServiceErrorReturnsExitCode(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "polyarb.db")
	cfgPath := writeRunConfig(t, dbPath, `api: { enabled: true, addr: "127.0.0.1:-1" }`)

	done := make(chan int, 1)
	go func() { done <- run([]string{"-config", cfgPath}) }()

	select {
	case code := <-done:
		assert.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("run no terminó tras el fallo de la API")
	}
}

func TestRun_BadConfig(t *testing.T) {
	assert.Equal(t, 1, run([]string{"-config", filepath.Join(t.TempDir(), "nope.yaml")}))
	assert.Equal(t, 2, run([]string{"-no-such-flag"}))
}
