package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreRoot != "" || cfg.Mode != "" || cfg.DefaultFormat != "" || len(cfg.KnownRunnerSchemes) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.toml")
	cfg := &Config{
		StoreRoot:          "/custom/store",
		Mode:               "multi-writer",
		KnownRunnerSchemes: []string{"pid", "gha", "k8s"},
		DefaultFormat:      "json",
	}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.StoreRoot != cfg.StoreRoot {
		t.Errorf("store_root: got %q, want %q", loaded.StoreRoot, cfg.StoreRoot)
	}
	if loaded.Mode != cfg.Mode {
		t.Errorf("mode: got %q, want %q", loaded.Mode, cfg.Mode)
	}
	if loaded.DefaultFormat != cfg.DefaultFormat {
		t.Errorf("default_format: got %q, want %q", loaded.DefaultFormat, cfg.DefaultFormat)
	}
	if len(loaded.KnownRunnerSchemes) != 3 {
		t.Fatalf("known_runner_schemes: got %d items, want 3", len(loaded.KnownRunnerSchemes))
	}
	for i, want := range []string{"pid", "gha", "k8s"} {
		if loaded.KnownRunnerSchemes[i] != want {
			t.Errorf("known_runner_schemes[%d]: got %q, want %q", i, loaded.KnownRunnerSchemes[i], want)
		}
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFrom(path)
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestGetSet(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"store_root", "store_root", "/tmp/store", "/tmp/store"},
		{"mode single-writer", "mode", "single-writer", "single-writer"},
		{"mode multi-writer", "mode", "multi-writer", "multi-writer"},
		{"default_format table", "default_format", "table", "table"},
		{"default_format json", "default_format", "json", "json"},
		{"known_runner_schemes", "known_runner_schemes", "pid,gha,k8s", "pid,gha,k8s"},
		{"known_runner_schemes empty", "known_runner_schemes", "", ""},
		{"hot_days", "hot_days", "30", "30"},
		{"blob_compression", "blob_compression", "gzip", "gzip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			if err := cfg.Set(tt.key, tt.value); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, err := cfg.Get(tt.key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetUnknownKey(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Get("nonexistent")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetUnknownKey(t *testing.T) {
	cfg := &Config{}
	err := cfg.Set("nonexistent", "value")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetInvalidFormat(t *testing.T) {
	cfg := &Config{}
	err := cfg.Set("default_format", "xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestSetInvalidMode(t *testing.T) {
	cfg := &Config{}
	err := cfg.Set("mode", "both-writer")
	if err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestSetInvalidCompression(t *testing.T) {
	cfg := &Config{}
	err := cfg.Set("blob_compression", "lz4")
	if err == nil {
		t.Fatal("expected error for invalid blob_compression")
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	if len(keys) != 11 {
		t.Fatalf("expected 11 keys, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] < keys[i-1] {
			t.Errorf("keys not sorted: %q before %q", keys[i-1], keys[i])
		}
	}
}

func TestPath(t *testing.T) {
	p := Path()
	if p == "" {
		t.Fatal("Path() returned empty string")
	}
	if filepath.Base(p) != "config.toml" {
		t.Errorf("Path() = %q, want basename config.toml", p)
	}
}

func TestSaveToCreatesDir(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c", "config.toml")
	cfg := &Config{StoreRoot: "/test/store"}
	if err := cfg.SaveTo(nested); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := LoadFrom(nested)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.StoreRoot != "/test/store" {
		t.Errorf("StoreRoot = %q, want /test/store", loaded.StoreRoot)
	}
}

func TestSetFormatEmptyResetsToDefault(t *testing.T) {
	cfg := &Config{DefaultFormat: "json"}
	if err := cfg.Set("default_format", ""); err != nil {
		t.Fatalf("Set empty format: %v", err)
	}
	got, _ := cfg.Get("default_format")
	if got != "" {
		t.Errorf("default_format = %q, want empty", got)
	}
}

func TestSaveAndLoadEmptyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := &Config{}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.StoreRoot != "" || loaded.Mode != "" || loaded.DefaultFormat != "" || len(loaded.KnownRunnerSchemes) != 0 {
		t.Errorf("expected all-empty config, got %+v", loaded)
	}
}

func TestLoadFromReadError(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFrom(filepath.Join(dir))
	if err == nil {
		t.Fatal("expected error when reading directory as file")
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	d := Defaults()
	if cfg.Mode != d.Mode || cfg.HotDays != d.HotDays || cfg.InlineThresholdBytes != d.InlineThresholdBytes {
		t.Errorf("WithDefaults() = %+v, want defaults %+v", cfg, d)
	}
}
