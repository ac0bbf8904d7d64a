package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/auth"
	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/config"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/mail"
	"github.com/spec-kit/enrollment-portal/internal/observability"
	"github.com/spec-kit/enrollment-portal/internal/persistence"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	"github.com/spec-kit/enrollment-portal/internal/service"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime holds what every subcommand needs: config, logger and a database.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
	redis  *persistence.Redis
}

func (r *runtime) close() {
	if r.redis != nil {
		r.redis.Close()
	}
	if r.pg != nil {
		r.pg.Close()
	}
	_ = r.logger.Sync()
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if pg.Pool == nil {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	return &runtime{cfg: cfg, logger: logger, pg: pg, redis: persistence.NewRedis(cfg.Redis, logger)}, nil
}

func (r *runtime) authService() *service.AuthService {
	var store cache.Store = cache.NewLocalStore(r.cfg.Cache.LocalSize, r.cfg.Cache.AnalyticsTTL())
	if r.redis.Enabled() {
		store = cache.NewRedisStore(r.redis.Client, "enrollment:cache:")
	}
	pool := r.pg.PoolHandle()
	return service.NewAuthService(*r.cfg, service.AuthDependencies{
		UserRepo:          repository.NewUserRepository(pool),
		PasswordResetRepo: repository.NewPasswordResetRepository(pool),
		Tokens:            auth.NewTokenManager(r.cfg.Auth.JWTSecret, r.cfg.Auth.AccessTokenTTLMinutes),
		Hasher:            auth.NewPasswordHasher(r.cfg.Auth.BcryptCost),
		Mailer:            mail.New(r.cfg.Mail, r.logger),
		Cache:             cache.New(store, r.cfg.Cache.AnalyticsTTL(), r.logger),
		Logger:            r.logger,
	})
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "enrollment-admin",
		Short:         "Operator tasks for the enrollment portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newCreateUserCommand())
	cmd.AddCommand(newPromoteCommand())
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			return persistence.RunMigrations(cmd.Context(), rt.pg.PoolHandle(), rt.logger)
		},
	}
}

func newCreateUserCommand() *cobra.Command {
	var (
		email    string
		password string
		role     string
		first    string
		last     string
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account with an explicit role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			user, err := rt.authService().CreateAccount(cmd.Context(), service.RegisterInput{
				Email:           email,
				Password:        password,
				FirstName:       first,
				LastNamePaterno: last,
			}, parseRole(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", user.Email, user.Role, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "STUDENT, AUDITOR, ADMIN or SUPERADMIN")
	cmd.Flags().StringVar(&first, "first-name", "", "given name")
	cmd.Flags().StringVar(&last, "last-name", "", "paternal last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newPromoteCommand() *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Change the role of an existing account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			user, err := rt.authService().Promote(cmd.Context(), email, parseRole(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&role, "role", "", "new role")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func parseRole(raw string) domain.Role {
	return domain.Role(strings.ToUpper(strings.TrimSpace(raw)))
}
