// Command seed-db loads a catalog fixture (restaurants, products, overrides,
// addresses and offers) into an empty database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/handler"
	"github.com/xenking/food-delivery-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		fixtureFile string
		jwtSecret   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture", "db/seed/fixture.json", "path to fixture JSON file, optionally .gz")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "when set, print bearer tokens for the seeded users (or FOOD_JWT_SECRET env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("FOOD_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixtureFile, jwtSecret); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixtureFile, jwtSecret string) error {
	fx, err := readFixture(fixtureFile)
	if err != nil {
		return errors.Wrap(err, "read fixture")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	s := &seeder{
		restaurants: postgres.NewRestaurantRepository(pool),
		products:    postgres.NewProductRepository(pool),
		addresses:   postgres.NewAddressRepository(pool),
		offers:      postgres.NewOfferRepository(pool),
	}
	if err := s.seed(ctx, fx); err != nil {
		return err
	}

	if jwtSecret != "" {
		return printTokens(fx, s, jwtSecret)
	}
	return nil
}

// printTokens prints a day-long token for an admin, each restaurant's staff
// and each address owner.
func printTokens(fx *fixture, s *seeder, secret string) error {
	authn := handler.NewAuthenticator([]byte(secret))
	actors := []auth.Actor{{UserID: 1, Role: auth.RoleAdmin}}
	for i, r := range fx.Restaurants {
		actors = append(actors, auth.Actor{
			UserID:       int64(1000 + i),
			Role:         auth.RoleRestaurant,
			RestaurantID: s.restaurantIDs[r.Key],
		})
	}
	owners := make(map[int64]bool)
	for _, a := range fx.Addresses {
		if !owners[a.OwnerUserID] {
			owners[a.OwnerUserID] = true
			actors = append(actors, auth.Actor{UserID: a.OwnerUserID, Role: auth.RoleCustomer})
		}
	}

	for _, a := range actors {
		tok, err := authn.Issue(a, 24*time.Hour)
		if err != nil {
			return errors.Wrapf(err, "issue token for user %d", a.UserID)
		}
		fmt.Printf("%s\t%d\t%d\t%s\n", a.Role, a.UserID, a.RestaurantID, tok)
	}
	return nil
}
