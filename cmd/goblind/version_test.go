package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommandExecution(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()
	rootCmd.Version = "1.2.3-test"

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)

	versionCmd.Run(versionCmd, []string{})

	output := buf.String()
	expected := "goblind version 1.2.3-test\n"
	if output != expected {
		t.Errorf("expected output %q, got %q", expected, output)
	}
}

func TestVersionCommandWithEmptyVersion(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()
	rootCmd.Version = ""

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, []string{})

	if !strings.Contains(buf.String(), "goblind version") {
		t.Error("output should contain 'goblind version' even with empty version")
	}
}

func TestVersionCommandRegisteredUnderRoot(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Use == "version" {
			found = true
		}
	}
	if !found {
		t.Error("expected version command to be registered under rootCmd")
	}
}
