package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scbrown/irs/internal/config"
)

func TestConfigCmdShowEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	configPath = filepath.Join(tmpDir, "config.toml")
	jsonOutput = false
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs([]string{"config"})
	if err := rootCmd.Execute(); err != nil {
		w.Close()
		os.Stdout = old
		t.Fatalf("execute: %v", err)
	}

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if !strings.Contains(output, "KEY") || !strings.Contains(output, "VALUE") {
		t.Errorf("expected table headers, got: %s", output)
	}
	if !strings.Contains(output, "store_root") {
		t.Errorf("expected store_root key, got: %s", output)
	}
	if !strings.Contains(output, "(not set)") {
		t.Errorf("expected (not set) for empty values, got: %s", output)
	}
}

func TestConfigCmdGet(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.toml")
	configPath = cfgPath
	jsonOutput = false
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	cfg := &config.Config{StoreRoot: "/custom/path/store"}
	if err := cfg.SaveTo(cfgPath); err != nil {
		t.Fatal(err)
	}

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs([]string{"config", "store_root"})
	if err := rootCmd.Execute(); err != nil {
		w.Close()
		os.Stdout = old
		t.Fatalf("execute: %v", err)
	}

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := strings.TrimSpace(buf.String())

	if output != "/custom/path/store" {
		t.Errorf("got %q, want %q", output, "/custom/path/store")
	}
}

func TestConfigCmdGetEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	configPath = filepath.Join(tmpDir, "config.toml")
	jsonOutput = false
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs([]string{"config", "store_root"})
	if err := rootCmd.Execute(); err != nil {
		w.Close()
		os.Stdout = old
		t.Fatalf("execute: %v", err)
	}

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := strings.TrimSpace(buf.String())

	if output != "" {
		t.Errorf("expected empty output for unset key, got %q", output)
	}
}

func TestConfigCmdSet(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.toml")
	configPath = cfgPath
	jsonOutput = false
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs([]string{"config", "mode", "multi-writer"})
	if err := rootCmd.Execute(); err != nil {
		w.Close()
		os.Stdout = old
		t.Fatalf("execute: %v", err)
	}

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if !strings.Contains(output, "mode = multi-writer") {
		t.Errorf("expected confirmation, got: %s", output)
	}

	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "multi-writer" {
		t.Errorf("persisted value: got %q, want %q", cfg.Mode, "multi-writer")
	}
}

func TestConfigCmdSetKnownRunnerSchemes(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.toml")
	configPath = cfgPath
	jsonOutput = false
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	rootCmd.SetArgs([]string{"config", "known_runner_schemes", "pid,gha,k8s"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KnownRunnerSchemes) != 3 {
		t.Fatalf("expected 3 schemes, got %d", len(cfg.KnownRunnerSchemes))
	}
	want := []string{"pid", "gha", "k8s"}
	for i, w := range want {
		if cfg.KnownRunnerSchemes[i] != w {
			t.Errorf("known_runner_schemes[%d]: got %q, want %q", i, cfg.KnownRunnerSchemes[i], w)
		}
	}
}

func TestConfigCmdInvalidKey(t *testing.T) {
	tmpDir := t.TempDir()
	configPath = filepath.Join(tmpDir, "config.toml")
	jsonOutput = false
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	rootCmd.SetArgs([]string{"config", "bad_key"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestConfigCmdInvalidKeySuggestsClosest(t *testing.T) {
	tmpDir := t.TempDir()
	configPath = filepath.Join(tmpDir, "config.toml")
	jsonOutput = false
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	rootCmd.SetArgs([]string{"config", "stor_root"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for near-miss key")
	}
	if !strings.Contains(err.Error(), "store_root") {
		t.Errorf("expected suggestion mentioning store_root, got: %v", err)
	}
}

func TestConfigCmdShowJSON(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.toml")
	configPath = cfgPath
	jsonOutput = true
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	cfg := &config.Config{
		StoreRoot: "/custom/path/store",
		Mode:      "multi-writer",
	}
	if err := cfg.SaveTo(cfgPath); err != nil {
		t.Fatal(err)
	}

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs([]string{"config", "--json"})
	if err := rootCmd.Execute(); err != nil {
		w.Close()
		os.Stdout = old
		t.Fatalf("execute: %v", err)
	}

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)

	var result config.Config
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("json unmarshal: %v\nOutput: %s", err, buf.String())
	}
	if result.StoreRoot != "/custom/path/store" {
		t.Errorf("store_root: got %q, want %q", result.StoreRoot, "/custom/path/store")
	}
	if result.Mode != "multi-writer" {
		t.Errorf("mode: got %q, want %q", result.Mode, "multi-writer")
	}
}

func TestConfigCmdTooManyArgs(t *testing.T) {
	tmpDir := t.TempDir()
	configPath = filepath.Join(tmpDir, "config.toml")
	jsonOutput = false
	defer func() {
		configPath = config.Path()
		jsonOutput = false
	}()

	rootCmd.SetArgs([]string{"config", "a", "b", "c"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for too many args")
	}
}
