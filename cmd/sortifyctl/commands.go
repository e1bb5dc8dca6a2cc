package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/internal/repository"
	"github.com/noah-isme/sortify-api/internal/service"
	"github.com/noah-isme/sortify-api/pkg/cache"
	"github.com/noah-isme/sortify-api/pkg/claimtoken"
	"github.com/noah-isme/sortify-api/pkg/database"
)

func (a *cli) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage database schema"}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(*cobra.Command, []string) error {
			if err := database.MigrateUp(a.cfg.Database.URL()); err != nil {
				return err
			}
			a.logger.Info("migrations applied")
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(*cobra.Command, []string) error {
			if err := database.MigrateDown(a.cfg.Database.URL(), steps); err != nil {
				return err
			}
			a.logger.Info("migrations rolled back")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			version, dirty, err := database.MigrationVersion(a.cfg.Database.URL())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
			return nil
		},
	})
	return cmd
}

func (a *cli) verifiersCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "verifiers", Short: "Grant or revoke verifier capability"}

	var level int
	grant := &cobra.Command{
		Use:   "grant <address>",
		Short: "Grant verifier capability to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVerifiers(cmd.Context(), func(ctx context.Context, svc *service.VerifierService, operator *models.JWTClaims) error {
				cred, err := svc.Grant(ctx, operator, args[0], level)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "granted %s level %d\n", cred.Account, cred.VerificationLevel)
				return nil
			})
		},
	}
	grant.Flags().IntVar(&level, "level", 1, "verification level")

	revoke := &cobra.Command{
		Use:   "revoke <address>",
		Short: "Revoke verifier capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVerifiers(cmd.Context(), func(ctx context.Context, svc *service.VerifierService, operator *models.JWTClaims) error {
				if err := svc.Revoke(ctx, operator, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	}
	cmd.AddCommand(grant, revoke)
	return cmd
}

func (a *cli) binsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "bins", Short: "Manage smart bins"}

	var req dto.RegisterBinRequest
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a smart bin and print its API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			operator, err := a.operator()
			if err != nil {
				return err
			}
			db, err := database.NewPostgres(a.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			signer := claimtoken.NewSigner(a.cfg.ClaimTokens.Secret, a.cfg.ClaimTokens.MaxAge)
			svc := service.NewBinService(repository.NewBinRepository(db), signer, validator.New(), a.logger)
			res, err := svc.Register(contextOrBackground(cmd.Context()), operator, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bin %s registered\napi key: %s\n", res.ID, res.APIKey)
			return nil
		},
	}
	register.Flags().StringVar(&req.ID, "id", "", "bin identifier")
	register.Flags().StringVar(&req.Location, "location", "", "installation address")
	register.Flags().Float64Var(&req.Latitude, "lat", 0, "latitude in degrees")
	register.Flags().Float64Var(&req.Longitude, "lng", 0, "longitude in degrees")
	_ = register.MarkFlagRequired("id")

	cmd.AddCommand(register)
	return cmd
}

func (a *cli) ratesCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "rates", Short: "Inspect the reward rate table"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print reward per kilogram for each waste type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.NewPostgres(a.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			rates, err := repository.NewRateRepository(db).List(contextOrBackground(cmd.Context()))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tRATE\tDESCRIPTION")
			for _, rate := range rates {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rate.WasteType, rate.Rate.String(), rate.Description)
			}
			return w.Flush()
		},
	})
	return cmd
}

func (a *cli) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Inspect the Redis read-model cache"}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush <keyspace>",
		Short: "Drop every cached entry of a keyspace, e.g. verifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cache.NewRedis(a.cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close() //nolint:errcheck

			removed, err := repository.NewCacheRepository(client, a.logger).DeleteKeyspace(contextOrBackground(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries from %s\n", removed, args[0])
			return nil
		},
	})
	return cmd
}

// operator acts as the first configured admin account.
func (a *cli) operator() (*models.JWTClaims, error) {
	if len(a.cfg.Admin.Accounts) == 0 {
		return nil, errors.New("ADMIN_ACCOUNTS is empty; configure an operator account")
	}
	account, ok := models.NormalizeAccount(a.cfg.Admin.Accounts[0])
	if !ok {
		return nil, fmt.Errorf("invalid admin account %q", a.cfg.Admin.Accounts[0])
	}
	return &models.JWTClaims{Account: account, Role: models.RoleAdmin}, nil
}

func (a *cli) withVerifiers(ctx context.Context, fn func(context.Context, *service.VerifierService, *models.JWTClaims) error) error {
	ctx = contextOrBackground(ctx)
	operator, err := a.operator()
	if err != nil {
		return err
	}
	db, err := database.NewPostgres(a.cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	cacheSvc, closeCache := a.verifierCache()
	defer closeCache()

	repo := repository.NewVerifierRepository(db)
	svc := service.NewVerifierService(repo, cacheSvc, a.cfg.Cache.VerifierTTL, repository.NewAuditRepository(db), a.logger)
	return fn(ctx, svc, operator)
}

// verifierCache shares the API's Redis so grants and revokes drop stale capability entries.
func (a *cli) verifierCache() (*service.CacheService, func()) {
	if !a.cfg.Cache.Enabled {
		return service.NewCacheService(nil, nil, a.cfg.Cache.VerifierTTL, a.logger, false), func() {}
	}
	client, err := cache.NewRedis(a.cfg.Redis)
	if err != nil {
		a.logger.Sugar().Warnw("redis unavailable, verifier cache not invalidated", "error", err)
		return service.NewCacheService(nil, nil, a.cfg.Cache.VerifierTTL, a.logger, false), func() {}
	}
	repo := repository.NewCacheRepository(client, a.logger)
	return service.NewCacheService(repo, nil, a.cfg.Cache.VerifierTTL, a.logger, true), func() { _ = client.Close() }
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
