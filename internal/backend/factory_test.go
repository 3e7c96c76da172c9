package backend

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"gastos/internal/config"
	"gastos/internal/filestore"
	"gastos/internal/storage"
)

func testFactory() Factory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreate_Combinations(t *testing.T) {
	tests := []struct {
		name       string
		cfg        func(dir string) Config
		wantSQLite bool
		wantRemote bool
		wantReplay bool
	}{
		{
			name: "sqlite local only",
			cfg: func(dir string) Config {
				return Config{Local: LocalSQLite, Remote: RemoteNone, SQLiteDBPath: filepath.Join(dir, "g.db")}
			},
			wantSQLite: true,
		},
		{
			name: "file local with memory remote",
			cfg: func(dir string) Config {
				return Config{Local: LocalFile, Remote: RemoteMemory, DataFile: filepath.Join(dir, "g.json"), RemoteTimeout: time.Second}
			},
			wantRemote: true,
		},
		{
			name: "memory local with queued replay",
			cfg: func(dir string) Config {
				return Config{Local: LocalMemory, Remote: RemoteMemory, ReplayQueue: true, SQLiteDBPath: filepath.Join(dir, "g.db"), RemoteTimeout: time.Second}
			},
			wantSQLite: true,
			wantRemote: true,
			wantReplay: true,
		},
		{
			name: "queued replay ignored without remote",
			cfg: func(dir string) Config {
				return Config{Local: LocalMemory, Remote: RemoteNone, ReplayQueue: true}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := testFactory().Create(context.Background(), tt.cfg(t.TempDir()), nil)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			defer res.Cleanup()

			if res.Local == nil {
				t.Fatal("Local must always be set")
			}
			if (res.SQLite != nil) != tt.wantSQLite {
				t.Errorf("SQLite set = %v, want %v", res.SQLite != nil, tt.wantSQLite)
			}
			if (res.Remote != nil) != tt.wantRemote {
				t.Errorf("Remote set = %v, want %v", res.Remote != nil, tt.wantRemote)
			}
			if tt.wantRemote && !res.Remote.Available() {
				t.Error("memory remote should initialize")
			}
			if (res.Replay != nil) != tt.wantReplay {
				t.Errorf("Replay set = %v, want %v", res.Replay != nil, tt.wantReplay)
			}
			opts := res.TrackerOptions()
			if (opts.Remote != nil) != tt.wantRemote || (opts.Replay != nil) != tt.wantReplay {
				t.Errorf("TrackerOptions() = %+v", opts)
			}
			if opts.Notifier != nil {
				t.Error("no AMQP URL configured, notifier must be nil")
			}
			if err := res.Ready(context.Background()); err != nil {
				t.Errorf("Ready() error = %v", err)
			}
		})
	}
}

func TestCreate_LocalTypes(t *testing.T) {
	dir := t.TempDir()
	res, err := testFactory().Create(context.Background(), Config{Local: LocalFile, Remote: RemoteNone, DataFile: filepath.Join(dir, "g.json")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Cleanup()
	if _, ok := res.Local.(*filestore.Store); !ok {
		t.Errorf("Local = %T, want *filestore.Store", res.Local)
	}

	res, err = testFactory().Create(context.Background(), Config{Local: LocalMemory, Remote: RemoteNone}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Cleanup()
	if _, ok := res.Local.(*storage.MemoryStore); !ok {
		t.Errorf("Local = %T, want *storage.MemoryStore", res.Local)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid memory", Config{Local: LocalMemory, Remote: RemoteNone}, false},
		{"bad local", Config{Local: "postgres", Remote: RemoteNone}, true},
		{"bad remote", Config{Local: LocalMemory, Remote: "firestore"}, true},
		{"sqlite without path", Config{Local: LocalSQLite, Remote: RemoteNone}, true},
		{"file without path", Config{Local: LocalFile, Remote: RemoteNone}, true},
		{"redis without addr", Config{Local: LocalMemory, Remote: RemoteRedis}, true},
		{"sheets without id", Config{Local: LocalMemory, Remote: RemoteSheets, GoogleServiceAccountJSON: "{}"}, true},
		{"sheets without credentials", Config{Local: LocalMemory, Remote: RemoteSheets, GoogleSpreadsheetID: "x"}, true},
		{"replay without sqlite path", Config{Local: LocalMemory, Remote: RemoteMemory, ReplayQueue: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	app := &config.Config{
		LocalBackend:     "file",
		RemoteBackend:    "redis",
		RemoteReplay:     config.ReplayQueue,
		DataFile:         "data/g.json",
		SQLiteDBPath:     "data/g.db",
		RemoteCollection: "gastos-compartidos",
		RemoteDocument:   "datos-principales",
		RedisAddr:        "localhost:6379",
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Local != LocalFile || cfg.Remote != RemoteRedis || !cfg.ReplayQueue {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	app.LocalBackend = "nope"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("expected error for invalid local backend")
	}
}
