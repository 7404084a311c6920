package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/transfa/kyc-service/internal/domain"
	"github.com/urfave/cli/v2"
)

// operations is the part of app.Service the CLI drives.
type operations interface {
	GetApplicant(ctx context.Context, actor domain.Actor, userID string) (*domain.Applicant, error)
	ListApplicants(ctx context.Context, actor domain.Actor, filter domain.ApplicantFilter) ([]domain.Applicant, error)
	Decide(ctx context.Context, actor domain.Actor, userID string, rawStatus string, reason *string) (*domain.Applicant, error)
	SetOverride(ctx context.Context, actor domain.Actor, userID string, enabled bool, reason *string) (*domain.Applicant, error)
}

type backend struct {
	ops     operations
	migrate func(ctx context.Context) error
	close   func()
}

type connector func(ctx context.Context, databaseURL, exchange string) (*backend, error)

var flagDatabaseURL *cli.StringFlag = &cli.StringFlag{
	Name:    "database-url",
	EnvVars: []string{"DATABASE_URL"},
	Usage:   "Postgres connection string",
}
var flagExchange *cli.StringFlag = &cli.StringFlag{
	Name:    "events-exchange",
	EnvVars: []string{"KYC_EVENTS_EXCHANGE"},
	Value:   "kyc_events",
	Usage:   "Exchange recorded on outbox notifications",
}
var flagActor *cli.StringFlag = &cli.StringFlag{
	Name:    "actor",
	EnvVars: []string{"KYCCTL_ACTOR"},
	Usage:   "Operator id recorded as the deciding admin",
}
var flagReason *cli.StringFlag = &cli.StringFlag{
	Name:  "reason",
	Usage: "Free-text reason stored with the change",
}
var flagTimeout *cli.DurationFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
}

func newApp(connect connector, out io.Writer) *cli.App {
	withBackend := func(cCtx *cli.Context, fn func(ctx context.Context, b *backend) error) error {
		databaseURL := strings.TrimSpace(cCtx.String(flagDatabaseURL.Name))
		if databaseURL == "" {
			return errors.New("--database-url or DATABASE_URL is required")
		}

		ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
		defer cancel()

		b, err := connect(ctx, databaseURL, cCtx.String(flagExchange.Name))
		if err != nil {
			return err
		}
		if b.close != nil {
			defer b.close()
		}
		return fn(ctx, b)
	}

	operator := func(cCtx *cli.Context) (domain.Actor, error) {
		id := strings.TrimSpace(cCtx.String(flagActor.Name))
		if id == "" {
			return domain.Actor{}, errors.New("--actor is required")
		}
		return domain.Actor{UserID: id, Role: domain.RoleAdmin}, nil
	}

	printJSON := func(v interface{}) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	return &cli.App{
		Name:  "kycctl",
		Usage: "operate the KYC review queue from the command line",
		Flags: []cli.Flag{flagDatabaseURL, flagExchange, flagActor, flagTimeout},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "create or update the kyc-service tables",
				Action: func(cCtx *cli.Context) error {
					return withBackend(cCtx, func(ctx context.Context, b *backend) error {
						if err := b.migrate(ctx); err != nil {
							return err
						}
						fmt.Fprintln(out, "schema is up to date")
						return nil
					})
				},
			},
			{
				Name:      "show",
				Usage:     "print one applicant",
				ArgsUsage: "<user-id>",
				Action: func(cCtx *cli.Context) error {
					actor, err := operator(cCtx)
					if err != nil {
						return err
					}
					if cCtx.NArg() != 1 {
						return errors.New("usage: kycctl show <user-id>")
					}
					return withBackend(cCtx, func(ctx context.Context, b *backend) error {
						applicant, err := b.ops.GetApplicant(ctx, actor, cCtx.Args().First())
						if err != nil {
							return err
						}
						return printJSON(applicant)
					})
				},
			},
			{
				Name:  "pending",
				Usage: "list applicants awaiting a decision",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: domain.DefaultApplicantPageSize},
					&cli.BoolFlag{Name: "override-only"},
				},
				Action: func(cCtx *cli.Context) error {
					actor, err := operator(cCtx)
					if err != nil {
						return err
					}
					status := domain.KYCStatusPending
					filter := domain.ApplicantFilter{
						Status:       &status,
						OverrideOnly: cCtx.Bool("override-only"),
						Limit:        cCtx.Int("limit"),
					}
					return withBackend(cCtx, func(ctx context.Context, b *backend) error {
						applicants, err := b.ops.ListApplicants(ctx, actor, filter)
						if err != nil {
							return err
						}
						for _, a := range applicants {
							submitted := "-"
							if a.SubmittedAt != nil {
								submitted = a.SubmittedAt.UTC().Format(time.RFC3339)
							}
							fmt.Fprintf(out, "%s\t%s\toverride=%t\tsubmitted=%s\n", a.UserID, a.KYCStatus, a.ManualOverrideEnabled, submitted)
						}
						return nil
					})
				},
			},
			{
				Name:      "decide",
				Usage:     "approve or reject an applicant",
				ArgsUsage: "<user-id> <approved|rejected>",
				Flags:     []cli.Flag{flagReason},
				Action: func(cCtx *cli.Context) error {
					actor, err := operator(cCtx)
					if err != nil {
						return err
					}
					if cCtx.NArg() != 2 {
						return errors.New("usage: kycctl decide <user-id> <approved|rejected>")
					}
					reason := optionalFlag(cCtx, flagReason.Name)
					return withBackend(cCtx, func(ctx context.Context, b *backend) error {
						applicant, err := b.ops.Decide(ctx, actor, cCtx.Args().Get(0), cCtx.Args().Get(1), reason)
						if err != nil {
							return err
						}
						return printJSON(applicant)
					})
				},
			},
			{
				Name:      "override",
				Usage:     "enable or disable the manual override",
				ArgsUsage: "<user-id> <on|off>",
				Flags:     []cli.Flag{flagReason},
				Action: func(cCtx *cli.Context) error {
					actor, err := operator(cCtx)
					if err != nil {
						return err
					}
					if cCtx.NArg() != 2 {
						return errors.New("usage: kycctl override <user-id> <on|off>")
					}
					var enabled bool
					switch strings.ToLower(cCtx.Args().Get(1)) {
					case "on", "true", "enable":
						enabled = true
					case "off", "false", "disable":
						enabled = false
					default:
						return fmt.Errorf("override state must be on or off, got %q", cCtx.Args().Get(1))
					}
					reason := optionalFlag(cCtx, flagReason.Name)
					return withBackend(cCtx, func(ctx context.Context, b *backend) error {
						applicant, err := b.ops.SetOverride(ctx, actor, cCtx.Args().Get(0), enabled, reason)
						if err != nil {
							return err
						}
						return printJSON(applicant)
					})
				},
			},
		},
	}
}

func optionalFlag(cCtx *cli.Context, name string) *string {
	if !cCtx.IsSet(name) {
		return nil
	}
	v := cCtx.String(name)
	return &v
}
