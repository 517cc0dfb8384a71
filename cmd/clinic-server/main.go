package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicadmin/clinic/internal/config"
	"github.com/clinicadmin/clinic/internal/domain/account"
	"github.com/clinicadmin/clinic/internal/domain/assessment"
	"github.com/clinicadmin/clinic/internal/domain/auditlog"
	"github.com/clinicadmin/clinic/internal/domain/identity"
	"github.com/clinicadmin/clinic/internal/domain/organization"
	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/internal/platform/db"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic administration API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(keygenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes JSON lines to w, or console output in development. A nil
// cfg (config failed to load) gets the JSON logger.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetInt("to")
			return withPool(func(ctx context.Context, cfg *config.Config, q db.Querier) error {
				m := db.NewMigrator(q, migrations.FS)
				var (
					count int
					err   error
				)
				if to > 0 {
					count, err = m.UpTo(ctx, to)
				} else {
					count, err = m.Up(ctx)
				}
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, q db.Querier) error {
				statuses, err := db.NewMigrator(q, migrations.FS).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

// userCmd bootstraps the first SuperAdmin. Every other account is created
// through the API.
func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a SuperAdmin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			if name == "" {
				name = email
			}

			return withPool(func(ctx context.Context, cfg *config.Config, q db.Querier) error {
				logger := newLogger(cfg, os.Stdout)
				keys, err := resolveKeys(ctx, cfg, logger)
				if err != nil {
					return err
				}
				cipher, index, err := newCiphers(keys, logger)
				if err != nil {
					return err
				}
				svc := account.NewService(account.NewRepo(q, cipher, index), nil, nil, account.Config{}, logger)
				u, err := svc.CreateUser(ctx, nil, account.CreateUserInput{
					Email:       email,
					Password:    password,
					DisplayName: name,
					Role:        auth.RoleSuperAdmin,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Created SuperAdmin %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("password", "", "Initial password")
	cmd.AddCommand(createCmd)
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh encryption key and blind index key",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := randomKey()
			if err != nil {
				return err
			}
			idx, err := randomKey()
			if err != nil {
				return err
			}
			fmt.Printf("HIPAA_ENCRYPTION_KEY=%s\n", base64.StdEncoding.EncodeToString(enc))
			fmt.Printf("BLIND_INDEX_KEY=%s\n", base64.StdEncoding.EncodeToString(idx))
			return nil
		},
	}
}

func withPool(fn func(ctx context.Context, cfg *config.Config, q db.Querier) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Hour,
	}
}

func randomKey() ([]byte, error) {
	key := make([]byte, hipaa.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// resolveKeys loads key material from Vault or the environment. A
// development server without keys gets throwaway ones; anything sealed
// with them is unreadable after a restart.
func resolveKeys(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (hipaa.Keys, error) {
	if cfg.KeySource == config.KeySourceVault {
		src, err := hipaa.NewVaultKeySource(cfg.VaultAddr, cfg.VaultToken, cfg.VaultKeyPath)
		if err != nil {
			return hipaa.Keys{}, err
		}
		return src.Load(ctx)
	}

	if cfg.HIPAAEncryptionKey == "" && cfg.BlindIndexKey == "" {
		if !cfg.IsDev() {
			return hipaa.Keys{}, errors.New("HIPAA_ENCRYPTION_KEY and BLIND_INDEX_KEY are required")
		}
		enc, err := randomKey()
		if err != nil {
			return hipaa.Keys{}, err
		}
		idx, err := randomKey()
		if err != nil {
			return hipaa.Keys{}, err
		}
		logger.Warn().Msg("no PHI keys configured, using ephemeral development keys")
		return hipaa.Keys{Encryption: enc, BlindIndex: idx}, nil
	}
	return hipaa.KeysFromStrings(cfg.HIPAAEncryptionKey, cfg.BlindIndexKey)
}

func newCiphers(keys hipaa.Keys, logger zerolog.Logger) (*hipaa.FieldCipher, *hipaa.BlindIndexer, error) {
	enc, err := hipaa.NewPHIEncryptor(keys.Encryption)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption key: %w", err)
	}
	index, err := hipaa.NewBlindIndexer(keys.BlindIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("blind index key: %w", err)
	}
	return hipaa.NewFieldCipher(enc, logger), index, nil
}

func runServer() error {
	cfg, err := config.Load()
	logger := newLogger(cfg, os.Stdout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	keys, err := resolveKeys(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load PHI keys")
	}
	cipher, index, err := newCiphers(keys, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build PHI ciphers")
	}

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := hipaa.RegisterAuditMetrics(registry); err != nil {
		logger.Fatal().Err(err).Msg("failed to register audit metrics")
	}

	auditStore := auditlog.NewStore(pool, cipher, index)
	sink := hipaa.NewAsyncAuditSink(auditStore, cfg.AuditBufferSize, cfg.AuditWorkers, logger)

	store := auth.NewMemoryStore(time.Minute)
	defer store.Close()

	sessions := auth.NewSessions(auth.SessionConfig{
		Secret:       []byte(cfg.JWTSecret),
		TTL:          cfg.SessionTTL,
		CookieName:   cfg.SessionCookie,
		SecureCookie: cfg.TLSEnabled() || cfg.IsProduction(),
		Issuer:       "clinic-server",
	})

	e := newRouter(deps{
		cfg:         cfg,
		logger:      logger,
		sessions:    sessions,
		store:       store,
		cipher:      cipher,
		accounts:    account.NewRepo(pool, cipher, index),
		orgs:        organization.NewRepo(pool, cipher),
		patients:    identity.NewPatientRepo(pool, cipher, index),
		doctors:     identity.NewDoctorRepo(pool, cipher, index),
		assessments: assessment.NewRepo(pool, cipher),
		audit:       auditStore,
		recorder:    sink,
		registry:    registry,
		health:      pool,
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled()).Msg("starting server")
		var err error
		if cfg.TLSEnabled() {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	// Drain queued audit entries before the pool closes.
	sink.Close()
	logger.Info().Msg("server stopped")
	return nil
}
