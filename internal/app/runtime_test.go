package app_test

import (
	"testing"

	"github.com/cashplan-fin/cashplan-fin/internal/app"
	_ "github.com/cashplan-fin/cashplan-fin/internal/testing/guard"
)

func TestGuardImportEnablesTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("importing the guard must put the process in test mode")
	}
}

func TestRefreshTestModeTracksEnv(t *testing.T) {
	t.Setenv("CASHPLAN_TEST_MODE", "0")
	app.RefreshTestMode()
	if app.InTestMode() {
		t.Fatal("test mode must follow the environment after refresh")
	}

	t.Setenv("CASHPLAN_TEST_MODE", "1")
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("test mode must re-enable after the flag returns")
	}
}
