package main

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/daya-auto/carsale/internal/auth"
	"github.com/daya-auto/carsale/internal/inventory"
	"github.com/daya-auto/carsale/internal/media"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/tariffs"
)

type catalogModel struct {
	Brand  string
	Models []string
	Grades []string
}

var catalog = []catalogModel{
	{Brand: "Toyota", Models: []string{"Aqua", "Prius", "Vitz", "Axio", "CHR"}, Grades: []string{"S", "G", "X", "Z"}},
	{Brand: "Honda", Models: []string{"Fit", "Vezel", "Grace", "Civic"}, Grades: []string{"Hybrid", "RS", "EX"}},
	{Brand: "Suzuki", Models: []string{"Wagon R", "Alto", "Swift", "Every"}, Grades: []string{"FX", "FZ", "Stingray"}},
	{Brand: "Nissan", Models: []string{"Leaf", "X-Trail", "Note", "Dayz"}, Grades: []string{"e-Power", "S", "Highway Star"}},
	{Brand: "Mitsubishi", Models: []string{"Outlander", "eK Wagon", "Montero"}, Grades: []string{"G", "M", "PHEV"}},
}

var origins = []string{"Japan", "United Kingdom", "Thailand", "India", "Singapore"}

var shippers = []string{"NYK Line", "MOL ACE", "K Line", "Hoegh Autoliners", "Wallenius Wilhelmsen"}

// fakeVehicle builds a plausible imported vehicle. Prices are in whole
// rupees with landed costs above the purchase price.
func fakeVehicle(f *gofakeit.Faker, now time.Time) inventory.Input {
	entry := catalog[f.Number(0, len(catalog)-1)]
	purchase := decimal.NewFromInt(int64(f.Number(15, 120)) * 100_000)
	cif := purchase.Add(decimal.NewFromInt(int64(f.Number(2, 15)) * 50_000))
	selling := cif.Mul(decimal.NewFromFloat(f.Float64Range(1.08, 1.35))).Round(-3)

	shipped := f.DateRange(now.AddDate(0, -8, 0), now.AddDate(0, 0, -30)).UTC().Truncate(24 * time.Hour)
	arrived := shipped.AddDate(0, 0, f.Number(18, 45))

	in := inventory.Input{
		ChassisNumber:   strings.ToUpper(f.LetterN(3)) + "-" + f.DigitN(7),
		Brand:           entry.Brand,
		Model:           entry.Models[f.Number(0, len(entry.Models)-1)],
		Year:            f.Number(now.Year()-10, now.Year()),
		Grade:           entry.Grades[f.Number(0, len(entry.Grades)-1)],
		Country:         origins[f.Number(0, len(origins)-1)],
		PurchasePrice:   purchase,
		CIFValue:        cif,
		LCValue:         cif.Mul(decimal.NewFromFloat(1.02)).Round(0),
		SellingPrice:    selling,
		Price:           selling,
		ShippingCompany: shippers[f.Number(0, len(shippers)-1)],
		ShippingDate:    &shipped,
		ArrivalDate:     &arrived,
	}
	if f.Bool() {
		in.PurchaserName = f.Name()
		in.PurchaserPhone = "+94 7" + f.DigitN(8)
		in.PurchaserIDNumber = f.DigitN(12)
		in.PurchaserAddress = f.Street() + ", " + f.City()
		in.AdvancePayment = selling.Mul(decimal.NewFromFloat(0.1)).Round(-3)
	}
	return in
}

// placeholderImage renders a small solid PNG so seeded vehicles go through
// the same upload path as real ones.
func placeholderImage(f *gofakeit.Faker, name string) (media.Image, error) {
	fill := color.NRGBA{R: uint8(f.Number(40, 220)), G: uint8(f.Number(40, 220)), B: uint8(f.Number(40, 220)), A: 255}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(320, 240, fill), imaging.PNG); err != nil {
		return media.Image{}, fmt.Errorf("render placeholder: %w", err)
	}
	return media.Image{Name: name + ".png", ContentType: "image/png", Data: buf.Bytes()}, nil
}

// fakeStatus leaves most stock available and marks the rest reserved or sold.
func fakeStatus(f *gofakeit.Faker) inventory.Status {
	switch n := f.Number(1, 10); {
	case n <= 6:
		return inventory.StatusAvailable
	case n <= 8:
		return inventory.StatusSold
	default:
		return inventory.StatusReserved
	}
}

func newSeedCmd(e env) *cobra.Command {
	var count int
	var owner string
	var seed uint64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake vehicles for demos and local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return errors.New("--vehicles must be positive")
			}
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if owner == "" && len(cfg.AdminEmails) > 0 {
				owner = cfg.AdminEmails[0]
			}
			ctx := cmd.Context()
			pool, err := e.database(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := e.logger(cfg)
			authRepo := auth.NewRepository(pool)
			authService := auth.NewService(authRepo, rbac.NewAdminPolicy(cfg.AdminEmails))
			user, err := authRepo.FindByEmail(ctx, owner)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("owner %s not found, create it with `carsalectl user create` first", owner)
				}
				return err
			}
			actor, err := authService.PrincipalByID(ctx, user.ID)
			if err != nil {
				return err
			}

			audit := shared.NewAuditLogger(pool)
			svc := inventory.NewService(inventory.NewRepository(pool), audit, inventory.ServiceConfig{
				Tariffs: tariffs.NewService(tariffs.NewRepository(pool), audit),
				Logger:  logger,
			})

			f := gofakeit.New(seed)
			now := time.Now()
			created := 0
			for i := 0; i < count; i++ {
				in := fakeVehicle(f, now)
				photo, err := placeholderImage(f, strings.ToLower(in.ChassisNumber))
				if err != nil {
					return err
				}
				v, err := svc.Create(ctx, actor, in, []media.Image{photo})
				if err != nil {
					var verr *shared.ValidationError
					if errors.As(err, &verr) {
						cmd.PrintErrf("skipped vehicle %d: %v\n", i+1, verr)
						continue
					}
					return err
				}
				if status := fakeStatus(f); status != inventory.StatusAvailable {
					if _, err := svc.ChangeStatus(ctx, actor, v.ID, string(status)); err != nil {
						return err
					}
				}
				created++
			}
			cmd.Printf("seeded %d vehicles owned by %s\n", created, actor.Email)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "vehicles", 20, "number of vehicles to insert")
	cmd.Flags().StringVar(&owner, "owner", "", "email of the owning account, defaults to the first admin")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, 0 picks one at random")
	return cmd
}
