package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"clinicbook/internal/config"
	"clinicbook/internal/domain"
	"clinicbook/internal/service/booking"
	"clinicbook/internal/store/postgres"
)

// seed fills a database with demo providers, a week of published
// availability each, and a scattering of bookings.
func main() {
	providers := flag.Int("providers", 5, "number of providers to create")
	requesters := flag.Int("requesters", 20, "number of requesters to book with")
	days := flag.Int("days", 7, "days of availability per provider")
	seed := flag.Uint64("seed", 0, "random seed (0 uses a random one)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "clinicbook-seed"),
	)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	db, err := postgres.Open(context.Background(), cfg.DatabaseURL, postgres.Options{MaxOpenConns: 4})
	if err != nil {
		log.Error("database connection failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		_ = postgres.Close(db)
	}()

	faker := gofakeit.New(int64(*seed))
	repo := postgres.NewBookingRepo(db)
	svc := booking.NewService(repo, domain.DefaultHoursPolicy(), nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	requesterIDs := make([]uuid.UUID, *requesters)
	for i := range requesterIDs {
		requesterIDs[i] = uuid.New()
	}

	today := domain.DayOf(time.Now())
	for i := 0; i < *providers; i++ {
		providerID := uuid.New()
		name := faker.Name()

		in := booking.PublishInput{
			ProviderID: providerID,
			SlotLength: time.Duration(faker.RandomInt([]int{15, 20, 30})) * time.Minute,
		}
		openAt := time.Duration(faker.Number(9, 12)) * time.Hour
		closeAt := time.Duration(faker.Number(15, 20)) * time.Hour
		for d := 0; d < *days; d++ {
			in.Days = append(in.Days, booking.PublishDay{
				Day:     today.AddDate(0, 0, d),
				Enabled: faker.Bool() || d < 2,
				Start:   openAt,
				End:     closeAt,
			})
		}

		actor := booking.Actor{ID: providerID, Role: booking.RoleProvider}
		res, err := svc.Publish(ctx, actor, in)
		if err != nil {
			log.Error("publish failed", slog.Any("err", err), slog.String("provider", name))
			os.Exit(1)
		}
		log.Info("provider seeded",
			slog.String("provider_id", providerID.String()),
			slog.String("name", name),
			slog.Int("slots", res.SlotsCreated),
		)

		booked := 0
		for d := 0; d < *days; d++ {
			free, err := svc.ListFreeSlots(ctx, providerID, today.AddDate(0, 0, d), 1)
			if err != nil {
				log.Error("list failed", slog.Any("err", err))
				os.Exit(1)
			}
			for _, slot := range free {
				if faker.Number(0, 4) != 0 {
					continue
				}
				requester := booking.Actor{
					ID:   requesterIDs[faker.Number(0, len(requesterIDs)-1)],
					Role: booking.RoleRequester,
				}
				if _, err := svc.Book(ctx, requester, slot.ID); err != nil {
					continue
				}
				booked++
			}
		}
		log.Info("bookings seeded", slog.String("provider_id", providerID.String()), slog.Int("booked", booked))
	}
}
