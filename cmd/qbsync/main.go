// Command qbsync runs a QuickBooks sync for one tenant outside the API
// server, for backfills and support.
//
//	qbsync -tenant <id> -contacts
//	qbsync -tenant <id> -contact <contact id>
//	qbsync -tenant <id> -project <project id>
//	qbsync -all
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/config"
	"roof-crm/internal/database"
	"roof-crm/internal/features/audit"
	"roof-crm/internal/features/crm"
	"roof-crm/internal/features/qbconnection"
	"roof-crm/internal/features/qbsync"
	"roof-crm/internal/logger"

	"github.com/goccy/go-json"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type options struct {
	TenantID  string
	ContactID string
	ProjectID string
	Contacts  bool
	All       bool
	Timeout   time.Duration
}

func parseOptions(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("qbsync", flag.ContinueOnError)
	fs.StringVar(&o.TenantID, "tenant", "", "tenant id")
	fs.StringVar(&o.ContactID, "contact", "", "sync one contact to a customer")
	fs.StringVar(&o.ProjectID, "project", "", "sync one project to an invoice")
	fs.BoolVar(&o.Contacts, "contacts", false, "sync every contact of the tenant")
	fs.BoolVar(&o.All, "all", false, "run the scheduled bulk sync for every connected tenant")
	fs.DurationVar(&o.Timeout, "timeout", 30*time.Minute, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.All {
		return o, nil
	}
	if o.TenantID == "" {
		return o, fmt.Errorf("-tenant is required unless -all is set")
	}
	n := 0
	for _, set := range []bool{o.ContactID != "", o.ProjectID != "", o.Contacts} {
		if set {
			n++
		}
	}
	if n != 1 {
		return o, fmt.Errorf("exactly one of -contact, -project or -contacts is required")
	}
	return o, nil
}

func run(ctx context.Context, o options, svc qbsync.SyncService, scheduler qbsync.SyncScheduler) (interface{}, error) {
	if o.All {
		return nil, scheduler.RunBulkSync(ctx)
	}

	ctx = context.WithValue(ctx, common_models.TenantIDKey, o.TenantID)
	switch {
	case o.ContactID != "":
		return svc.SyncContactToCustomer(ctx, o.TenantID, o.ContactID), nil
	case o.ProjectID != "":
		return svc.SyncProjectToInvoice(ctx, o.TenantID, o.ProjectID), nil
	default:
		return svc.BulkSyncContacts(ctx, o.TenantID)
	}
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	exitCode := 0
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			database.NewDatabase,
			database.NewPostgres,
			database.NewRedis,
			audit.NewAuditRepository,
			audit.NewAuditService,
			crm.NewRecordRepository,
			crm.NewContactRepository,
			crm.NewProjectRepository,
			qbconnection.NewConnectionRepository,
			qbconnection.NewVault,
			qbconnection.NewOAuthClient,
			qbconnection.NewLocker,
			qbconnection.NewStateStore,
			qbconnection.NewRateLimiter,
			qbconnection.NewBreaker,
			qbconnection.NewClientFactory,
			qbconnection.NewTokenStore,
			qbsync.NewMappingRepository,
			qbsync.NewSyncLogRepository,
			qbsync.NewSyncService,
			qbsync.NewSyncScheduler,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, svc qbsync.SyncService, scheduler qbsync.SyncScheduler, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
						defer cancel()

						out, err := run(ctx, opts, svc, scheduler)
						if err != nil {
							logger.Error("Sync failed", zap.Error(err))
							exitCode = 1
						} else if out != nil {
							b, _ := json.MarshalIndent(out, "", "  ")
							fmt.Println(string(b))
							if res, ok := out.(qbsync.Result); ok && !res.Success {
								exitCode = 1
							}
						}
						_ = shutdowner.Shutdown(fx.ExitCode(exitCode))
					}()
					return nil
				},
			})
		}),
	)

	app.Run()
}
