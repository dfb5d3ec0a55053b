package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tokencore/internal/app"
	"github.com/dropDatabas3/tokencore/internal/bootstrap"
	"github.com/dropDatabas3/tokencore/internal/config"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/jwt"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
	"github.com/dropDatabas3/tokencore/internal/security/password"
	"github.com/dropDatabas3/tokencore/internal/security/pkce"
	"github.com/dropDatabas3/tokencore/internal/security/secretbox"
	"github.com/dropDatabas3/tokencore/internal/store/pg"
	"github.com/dropDatabas3/tokencore/internal/util/atomicwrite"
)

var (
	flagConfig  string
	flagTimeout time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tokencorectl",
		Short:         "Herramientas operativas del authorization server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			logger.Init(logger.Config{Env: envOr("APP_ENV", "dev"), Level: envOr("LOG_LEVEL", "warn"), ServiceName: "tokencorectl"})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) { _ = logger.Sync() },
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", envOr("CONFIG_PATH", ""), "path al config.yaml (vacío = defaults + env)")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "timeout de la operación")

	root.AddCommand(keysCmd(), secretCmd(), userCmd(), pkceCmd(), migrateCmd(), seedCmd(), purgeCmd())
	return root
}

// ─── keys ───

func keysCmd() *cobra.Command {
	c := &cobra.Command{Use: "keys", Short: "Material criptográfico"}
	var (
		bits      int
		outDir    string
		overwrite bool
	)
	gen := &cobra.Command{
		Use:   "gen",
		Short: "Genera un par RSA (PEM) y una clave de cifrado",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := jwt.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			priv, err := kp.PrivatePEM()
			if err != nil {
				return err
			}
			pub, err := kp.PublicPEM()
			if err != nil {
				return err
			}
			ek, err := secretbox.GenerateKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outDir != "" {
				files := []struct {
					name string
					data []byte
					perm os.FileMode
				}{
					{"private.pem", priv, 0o600},
					{"public.pem", pub, 0o644},
					{"encryption.key", []byte(ek.String() + "\n"), 0o600},
				}
				for _, f := range files {
					p := filepath.Join(outDir, f.name)
					if err := atomicwrite.WriteFile(p, f.data, f.perm, overwrite); err != nil {
						return err
					}
					fmt.Fprintf(out, "escrito %s\n", p)
				}
				fmt.Fprintf(out, "kid: %s\n", kp.KID())
				return nil
			}
			fmt.Fprintf(out, "# kid: %s\n", kp.KID())
			fmt.Fprint(out, string(priv))
			fmt.Fprint(out, string(pub))
			fmt.Fprintf(out, "%s=%s\n", secretbox.EnvVar, ek.String())
			return nil
		},
	}
	gen.Flags().IntVar(&bits, "bits", 2048, "tamaño de la clave RSA")
	gen.Flags().StringVar(&outDir, "out-dir", "", "escribir private.pem, public.pem y encryption.key en este directorio")
	gen.Flags().BoolVar(&overwrite, "force", false, "sobrescribir archivos existentes")
	c.AddCommand(gen)
	return c
}

// ─── secret / user ───

func secretCmd() *cobra.Command {
	c := &cobra.Command{Use: "secret", Short: "Secretos de clientes confidenciales"}
	c.AddCommand(&cobra.Command{
		Use:   "hash <secret>",
		Short: "Genera salt + digest para un client secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			salt, err := password.NewSalt()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "salt=%s\ndigest=%s\n", salt, password.DigestSecret(args[0], salt))
			return nil
		},
	})
	return c
}

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Usuarios"}
	var skipPolicy bool
	hash := &cobra.Command{
		Use:   "hash <password>",
		Short: "Genera un hash argon2id (PHC) para seeds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !skipPolicy {
				if err := password.DefaultPolicy.Check(args[0]); err != nil {
					return fmt.Errorf("password rechazada: %w", err)
				}
			}
			phc, err := password.Hash(password.Default, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), phc)
			return nil
		},
	}
	hash.Flags().BoolVar(&skipPolicy, "skip-policy", false, "no aplicar la política de passwords")

	var realm, username string
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea un usuario pidiendo el password por terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := types.ParseRealm(realm)
			if err != nil {
				return err
			}
			prompt := bootstrap.Prompt{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
			name, pw, err := prompt.Credentials(username)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, ok := a.Stores[r]
				if !ok {
					return fmt.Errorf("realm %s deshabilitado", r)
				}
				u, err := bootstrap.CreateUser(ctx, st, name, pw, password.Default)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "usuario creado: id=%s realm=%s username=%s\n", u.ID, u.Realm, u.Username)
				return nil
			})
		},
	}
	create.Flags().StringVar(&realm, "realm", string(types.RealmBackend), "realm del usuario (backend|frontend)")
	create.Flags().StringVar(&username, "username", "", "username (si falta se pide)")

	c.AddCommand(hash, create)
	return c
}

func pkceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pkce",
		Short: "Genera un code_verifier y su challenge S256",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ch, err := pkce.NewVerifier()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "code_verifier=%s\ncode_challenge=%s\ncode_challenge_method=S256\n", v, ch)
			return nil
		},
	}
}

// ─── storage ───

func migrateCmd() *cobra.Command {
	var dsn string
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				cfg, err := config.Load(flagConfig)
				if err != nil {
					return err
				}
				dsn = cfg.Storage.DSN
			}
			if dsn == "" {
				return fmt.Errorf("falta DSN (--dsn o STORAGE_DSN)")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
			defer cancel()
			pool, err := pg.Connect(ctx, pg.PoolConfig{DSN: dsn})
			if err != nil {
				return err
			}
			defer pool.Close()
			n, err := pg.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migraciones aplicadas: %d\n", n)
			return nil
		},
	}
	c.Flags().StringVar(&dsn, "dsn", "", "DSN de Postgres (default: storage.dsn del config)")
	return c
}

func seedCmd() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:   "seed",
		Short: "Carga clientes y usuarios desde un archivo YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.SeedFromFile(ctx, file)
			})
		},
	}
	c.Flags().StringVar(&file, "file", "", "archivo de seed")
	_ = c.MarkFlagRequired("file")
	return c
}

func purgeCmd() *cobra.Command {
	var olderThan time.Duration
	c := &cobra.Command{
		Use:   "purge",
		Short: "Borra tokens y codes expirados",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Purge(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "filas purgadas: %d\n", n)
				return nil
			})
		},
	}
	c.Flags().DurationVar(&olderThan, "older-than", 0, "sólo purgar lo expirado hace más de este intervalo")
	return c
}

func withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()
	a, err := app.New(ctx, cfg, app.WithoutHTTP())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
