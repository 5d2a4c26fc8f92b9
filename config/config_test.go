package config

import (
	"path/filepath"
	"testing"
)

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := Config{ProxyPort: 70000}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for proxy port %d", cfg.ProxyPort)
	}

	cfg = Config{ProxyPort: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for proxy port %d", cfg.ProxyPort)
	}
}

func TestValidateDefaultsDirFmt(t *testing.T) {
	cfg := Config{ProxyPort: 8080}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %s", err)
	}
	if cfg.DirFmt != DefaultDirFmt {
		t.Errorf("DirFmt = %q, want %q", cfg.DirFmt, DefaultDirFmt)
	}
}

func TestValidateFallsBackToWebpFormat(t *testing.T) {
	cfg := Config{DownloadFormat: "jxl"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %s", err)
	}
	if cfg.DownloadFormat != FormatWebp {
		t.Errorf("DownloadFormat = %q, want %q", cfg.DownloadFormat, FormatWebp)
	}

	cfg = Config{DownloadFormat: FormatAvif}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %s", err)
	}
	if cfg.DownloadFormat != FormatAvif {
		t.Errorf("DownloadFormat = %q, want it left untouched as %q", cfg.DownloadFormat, FormatAvif)
	}
}

func TestValidateDefaultsProxyHostForCustomMode(t *testing.T) {
	cfg := Config{ProxyMode: ProxyModeCustom, ProxyPort: 8080}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %s", err)
	}
	if cfg.ProxyHost != "127.0.0.1" {
		t.Errorf("ProxyHost = %q, want default %q", cfg.ProxyHost, "127.0.0.1")
	}
}

func TestResolveDirsExpandsRelativePaths(t *testing.T) {
	cfg := &Config{DownloadDir: "downloads", ExportDir: "/abs/exports"}
	resolveDirs(cfg, "/data/galleryvault")

	if want := "/data/galleryvault/downloads"; cfg.DownloadDir != want {
		t.Errorf("DownloadDir = %q, want %q", cfg.DownloadDir, want)
	}
	if want := "/abs/exports"; cfg.ExportDir != want {
		t.Errorf("ExportDir = %q, want unchanged absolute path %q", cfg.ExportDir, want)
	}
}

func TestOpenCreatesMissingAppDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "galleryvault")

	if _, err := Open(dir, nil); err != nil {
		t.Fatalf("Open on a non-existent app data dir failed: %s", err)
	}
}

func TestOpenWritesDefaultsThenRoundTripsSave(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}

	got := store.Get()
	if got.DirFmt != DefaultDirFmt {
		t.Errorf("freshly opened DirFmt = %q, want %q", got.DirFmt, DefaultDirFmt)
	}
	if got.DownloadFormat != FormatWebp {
		t.Errorf("freshly opened DownloadFormat = %q, want %q", got.DownloadFormat, FormatWebp)
	}

	updated := got
	updated.ProxyMode = ProxyModeCustom
	updated.ProxyHost = "127.0.0.1"
	updated.ProxyPort = 8080

	if err := store.Save(updated); err != nil {
		t.Fatalf("Save failed: %s", err)
	}

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("re-Open failed: %s", err)
	}
	got = reopened.Get()
	if got.ProxyMode != ProxyModeCustom || got.ProxyHost != "127.0.0.1" || got.ProxyPort != 8080 {
		t.Errorf("reopened config = %+v, want saved proxy settings preserved", got)
	}
}
