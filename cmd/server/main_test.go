package main

import (
	"os"
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version must not be empty")
	}
}

func TestRun_FailsFastWithoutRequiredConfig(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("GOOGLE_CLOUD_PROJECT")

	err := run()
	if err == nil {
		t.Fatal("expected an error when required config is missing")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error = %v, want it to mention DATABASE_URL", err)
	}
}
