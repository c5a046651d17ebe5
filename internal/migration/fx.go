package migration

import (
	"github.com/smallbiznis/planforge/internal/config"
	plandomain "github.com/smallbiznis/planforge/internal/plan/domain"
	"github.com/smallbiznis/planforge/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres deployments (sqlite dev mode, mysql) lean on
			// gorm's schema sync instead of versioned SQL.
			if err := conn.AutoMigrate(
				&seed.Organization{},
				&plandomain.BillingPlan{},
				&plandomain.PlanTier{},
			); err != nil {
				return err
			}
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureMainOrgWithID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureMainOrg(conn)
	}),
)
