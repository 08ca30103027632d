package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"carevault/internal/chunkstore"
	"carevault/internal/config"
	"carevault/internal/server"
	"carevault/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the carevault API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			chunks, closeChunks, err := openChunkStore(cfg)
			if err != nil {
				return err
			}
			if closeChunks != nil {
				defer closeChunks()
			}

			srv, err := server.New(addr, st, chunks, cfg, logger)
			if err != nil {
				return err
			}
			return srv.ListenAndServe()
		},
	}
}

// openChunkStore builds the configured chunk store backend. The returned
// close func is nil for backends without a connection to release.
func openChunkStore(cfg *config.Config) (chunkstore.Store, func(), error) {
	switch cfg.ChunkStore.Backend {
	case "", "sqlite":
		cs, err := chunkstore.OpenSQLite(cfg.ChunkStorePath())
		if err != nil {
			return nil, nil, err
		}
		return cs, func() { _ = cs.Close() }, nil
	case "local":
		cs, err := chunkstore.NewLocalStore(cfg.ChunkStorePath())
		if err != nil {
			return nil, nil, err
		}
		return cs, nil, nil
	case "s3":
		cs, err := chunkstore.NewS3Store(chunkstore.S3Config{
			Endpoint:  cfg.ChunkStore.S3Endpoint,
			Region:    cfg.ChunkStore.S3Region,
			Bucket:    cfg.ChunkStore.S3Bucket,
			AccessKey: cfg.ChunkStore.S3AccessKey,
			SecretKey: cfg.ChunkStore.S3SecretKey,
			UseSSL:    cfg.ChunkStore.S3UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		return cs, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown chunk store backend %q", cfg.ChunkStore.Backend)
	}
}
