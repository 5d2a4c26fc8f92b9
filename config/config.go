// Package config implements the settings half of C6: a typed Config,
// persisted as JSON, loaded at startup, saved on every mutation, and
// hot-reloaded on external edits. The persistence shape is grounded in the
// teacher's book_management/config_file.go; the load/save/watch machinery
// is upgraded to github.com/spf13/viper the way Slinet6056-ehdb and
// smx06-go-civitai-downloader use it, so "watch for external edits" is
// Viper's built-in fsnotify-backed WatchConfig rather than a hand-rolled
// poller.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/sirzenith/galleryvault/common"
	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/spf13/viper"
)

// DownloadFormat is the user's preferred image format for new downloads.
type DownloadFormat string

const (
	FormatWebp DownloadFormat = "webp"
	FormatAvif DownloadFormat = "avif"
)

// ProxyMode mirrors httpclient.ProxyMode; kept as its own string type here
// so this package has no dependency on httpclient.
type ProxyMode string

const (
	ProxyModeSystem ProxyMode = "system"
	ProxyModeNone   ProxyMode = "no_proxy"
	ProxyModeCustom ProxyMode = "custom"
)

// DefaultDirFmt is used whenever dirFmt is empty (spec §3 invariant).
const DefaultDirFmt = "{id} {title}"

// Config is the engine-wide typed configuration (spec §3).
type Config struct {
	DownloadDir     string         `json:"downloadDir" mapstructure:"downloadDir"`
	ExportDir       string         `json:"exportDir" mapstructure:"exportDir"`
	DownloadFormat  DownloadFormat `json:"downloadFormat" mapstructure:"downloadFormat"`
	ProxyMode       ProxyMode      `json:"proxyMode" mapstructure:"proxyMode"`
	ProxyHost       string         `json:"proxyHost" mapstructure:"proxyHost"`
	ProxyPort       int            `json:"proxyPort" mapstructure:"proxyPort"`
	DirFmt          string         `json:"dirFmt" mapstructure:"dirFmt"`
	EnableFileLogger bool          `json:"enableFileLogger" mapstructure:"enableFileLogger"`
}

// Validate enforces the invariants from spec §3: ports in range, dirFmt
// falls back to the fixed default when empty.
func (c *Config) Validate() error {
	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		return galleryerr.New(galleryerr.KindConfig, fmt.Sprintf("proxy port %d out of range", c.ProxyPort), nil)
	}
	if c.DirFmt == "" {
		c.DirFmt = DefaultDirFmt
	}
	if c.DownloadFormat != FormatWebp && c.DownloadFormat != FormatAvif {
		c.DownloadFormat = FormatWebp
	}
	if c.ProxyMode == ProxyModeCustom {
		c.ProxyHost = common.GetStrOr(c.ProxyHost, "127.0.0.1")
	}
	return nil
}

// resolveDirs expands DownloadDir/ExportDir against appDataDir when the
// user (or an on-disk config predating a relocation) left them relative,
// the same way the teacher resolves a relative library path against its
// own install directory.
func resolveDirs(cfg *Config, appDataDir string) {
	cfg.DownloadDir = common.ResolveRelativePath(cfg.DownloadDir, appDataDir)
	cfg.ExportDir = common.ResolveRelativePath(cfg.ExportDir, appDataDir)
}

func defaults(appDataDir string) Config {
	return Config{
		DownloadDir:    filepath.Join(appDataDir, "downloads"),
		ExportDir:      filepath.Join(appDataDir, "exports"),
		DownloadFormat: FormatWebp,
		ProxyMode:      ProxyModeSystem,
		DirFmt:         DefaultDirFmt,
	}
}

// Store owns the process-wide Config, its on-disk JSON file, and the
// filesystem watch that reloads it on external edits.
type Store struct {
	v          *viper.Viper
	appDataDir string

	mu      sync.RWMutex
	current Config

	onChange func(Config)
}

// Open loads {appDataDir}/config.json, writing defaults first if the file
// does not exist yet, and starts watching it for external modification.
func Open(appDataDir string, onChange func(Config)) (*Store, error) {
	if err := os.MkdirAll(appDataDir, 0o777); err != nil {
		return nil, galleryerr.New(galleryerr.KindIO, "failed to create app data dir", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(appDataDir)

	path := filepath.Join(appDataDir, "config.json")

	s := &Store{v: v, appDataDir: appDataDir, onChange: onChange}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, galleryerr.New(galleryerr.KindIO, "failed to read config file", err)
		}

		def := defaults(appDataDir)
		s.current = def
		if err := s.writeLocked(); err != nil {
			return nil, err
		}
	} else {
		cfg := defaults(appDataDir)
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, galleryerr.New(galleryerr.KindParse, "failed to parse config file", err)
		}
		resolveDirs(&cfg, appDataDir)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		s.current = cfg
	}

	v.OnConfigChange(func(fsnotify.Event) {
		s.mu.Lock()
		cfg := defaults(s.appDataDir)
		if err := s.v.Unmarshal(&cfg); err != nil {
			log.Warnf("failed to parse externally modified config %s: %s", path, err)
			s.mu.Unlock()
			return
		}
		resolveDirs(&cfg, s.appDataDir)
		if err := cfg.Validate(); err != nil {
			log.Warnf("externally modified config %s is invalid: %s", path, err)
			s.mu.Unlock()
			return
		}
		s.current = cfg
		handler := s.onChange
		s.mu.Unlock()

		log.Infof("config reloaded from %s", path)
		if handler != nil {
			handler(cfg)
		}
	})
	v.WatchConfig()

	return s, nil
}

// Get returns a snapshot of the current config.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save validates and persists cfg, ordered so that observers never see a
// "saved" signal before the bytes hit disk (spec §5 ordering guarantee):
// the file is written synchronously before this call returns, and Viper's
// watch delivers the reload only after the rename completes.
func (s *Store) Save(cfg Config) error {
	resolveDirs(&cfg, s.appDataDir)
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = cfg
	err := s.writeLocked()
	s.mu.Unlock()

	return err
}

// writeLocked must be called with s.mu held. It writes the config file
// atomically (temp file in the same directory, then rename) per spec §4.6,
// rather than through Viper's WriteConfigAs, which truncates the file in
// place and would let a reader briefly observe a half-written config.
func (s *Store) writeLocked() error {
	path := filepath.Join(s.appDataDir, "config.json")

	if err := common.AtomicWriteFile(path, s.marshalCurrent(), 0o644); err != nil {
		return galleryerr.New(galleryerr.KindIO, "failed to write config file", err)
	}
	return nil
}

func (s *Store) marshalCurrent() []byte {
	data, err := json.MarshalIndent(s.current, "", "    ")
	if err != nil {
		// Config has no field type that can fail to marshal.
		panic(fmt.Sprintf("failed to encode config: %s", err))
	}
	return data
}
