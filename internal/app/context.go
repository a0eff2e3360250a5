package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"socialservice/internal/config"
	"socialservice/internal/db"
	"socialservice/internal/directory"
	"socialservice/internal/engine"
	"socialservice/internal/filestore"
	"socialservice/internal/migrate"
	"socialservice/internal/render"
)

// Runtime bundles an engine with the resources it owns.
type Runtime struct {
	Engine engine.Engine
	Config *config.Config
	Files  *filestore.Store
	conn   *sql.DB
}

// Close releases the database handle.
func (r *Runtime) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Open prepares workspace, applies pending migrations and wires the engine
// to disk storage, the PDF renderer and the academic directory. configPath
// overrides <workspace>/socialservice.yml when set.
func Open(ctx context.Context, workspace, configPath string, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := loadConfig(workspace, configPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	files := filestore.NewDisk(StorageRoot(workspace, cfg))
	e := engine.New(conn, cfg)
	e.Files = files
	e.Renderer = render.PDF{Files: files}
	if cfg.Directory.URL != "" {
		e.Directory = directory.New(cfg.Directory, logger)
	}
	e.Logger = logger
	return &Runtime{Engine: e, Config: cfg, Files: files, conn: conn}, nil
}

func loadConfig(workspace, configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.FromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// StorageRoot resolves the upload directory; relative roots live inside the
// workspace.
func StorageRoot(workspace string, cfg *config.Config) string {
	root := cfg.Storage.Root
	if root == "" {
		root = "uploads"
	}
	if filepath.IsAbs(root) {
		return root
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, root)
}
