package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	httpadp "coopfund-backend/internal/adapter/http"
	"coopfund-backend/internal/adapter/middleware"
	"coopfund-backend/internal/adapter/repository/mysql"
	"coopfund-backend/internal/config"
	"coopfund-backend/internal/external/consensus"
	"coopfund-backend/internal/external/kyc"
	"coopfund-backend/internal/external/notify"
	"coopfund-backend/internal/external/settlement"
	"coopfund-backend/internal/infrastructure/cache"
	"coopfund-backend/internal/infrastructure/db"
	"coopfund-backend/internal/jobs"
	"coopfund-backend/internal/usecase/lending"
	"coopfund-backend/internal/usecase/membership"
	"coopfund-backend/internal/usecase/profit"
	"coopfund-backend/internal/usecase/reconcile"
	"coopfund-backend/internal/usecase/trust"
	"coopfund-backend/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Setup()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		log.Fatal(err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal(err)
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Fatal(err)
	}

	txm := mysql.NewGormUoW(gdb)
	settle := settlement.NewHTTPClient(cfg.SettlementBaseURL, time.Duration(cfg.SettlementTimeoutSecs)*time.Second)
	accounts := settlement.PrefixDirectory{Prefix: "user-"}
	verifier := kyc.StaticVerifier{Status: kyc.StatusVerified}
	notifier := notify.LogDispatcher{}
	auditLog := consensus.LogPublisher{}

	membershipUC := membership.NewUsecase(txm, settle, accounts, verifier, notifier, cfg.SettlementAssetRef)
	lendingUC := lending.NewUsecase(txm, settle, accounts, verifier, notifier, auditLog, cfg.SettlementAssetRef)
	profitUC := profit.NewUsecase(txm, notifier)
	trustUC := trust.NewUsecase(txm)
	reconcileUC := reconcile.NewUsecase(txm, settle, notifier)
	reconcileUC.Epsilon = cfg.ReconcileEpsilon
	reconcileUC.MaxAttempts = cfg.TransferMaxTries
	reconcileUC.StaleAfter = time.Duration(cfg.StaleSendingMins) * time.Minute

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Logger(), echomw.Recover())
	e.Use(middleware.IdempotencyMiddleware(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second))

	h := httpadp.NewHandler()
	gh := httpadp.NewGroupHandler(membershipUC)
	lh := httpadp.NewLendingHandler(lendingUC)
	ph := httpadp.NewPaymentsHandler(lendingUC)
	fh := httpadp.NewProfitHandler(profitUC)
	th := httpadp.NewTrustHandler(trustUC)
	rh := httpadp.NewReconcileHandler(reconcileUC)

	// routes
	e.GET("/health", h.Health)

	e.POST("/groups", gh.CreateGroup)
	e.GET("/groups/:slug", gh.GetGroup)
	e.POST("/groups/:slug/join", gh.JoinGroup)
	e.POST("/groups/:slug/deposits", gh.Deposit)
	e.POST("/groups/:slug/withdrawals", gh.Withdraw)
	e.GET("/groups/:slug/balance", gh.GetBalance)
	e.GET("/groups/:slug/ledger", gh.ListLedger)

	e.POST("/groups/:slug/loan-requests", lh.SubmitRequest)
	e.GET("/loan-requests/:request_id", lh.GetRequest)
	e.POST("/loan-requests/:request_id/votes", lh.CastVote)
	e.POST("/loan-requests/:request_id/disburse", lh.Disburse)
	e.GET("/loans/:loan_id", lh.GetLoan)
	e.GET("/loans/:loan_id/schedule", lh.Schedule)
	e.POST("/loans/:loan_id/repayments", lh.RecordRepayment)
	e.GET("/groups/:slug/loans", lh.ListLoans)

	e.POST("/repayments/:repayment_id/approve", ph.Approve)
	e.POST("/repayments/:repayment_id/reject", ph.Reject)
	e.GET("/groups/:slug/suspect-payments", ph.ListSuspect)
	e.GET("/groups/:slug/credits", ph.ListCredits)
	e.POST("/credits/:credit_id/apply", ph.ApplyCredit)

	e.GET("/groups/id/:group_id/pool", fh.GetPool)
	e.GET("/groups/id/:group_id/distributions", fh.ListDistributions)
	e.POST("/system/groups/:group_id/distribute", fh.Distribute)

	e.GET("/groups/:slug/members/:user_id/trust", th.GetScore)
	e.POST("/groups/:slug/members/:user_id/trust/recompute", th.Recompute)
	e.GET("/groups/:slug/members/:user_id/trust/history", th.History)

	e.POST("/groups/:slug/reconcile", rh.ReconcileVault)
	e.GET("/transfers/:transfer_id", rh.GetTransferTrail)
	e.POST("/system/sweep", rh.Sweep)

	// background jobs
	runner := jobs.NewRunner(
		jobs.Job{
			Name:     "outbox_sweep",
			Interval: time.Duration(cfg.OutboxSweepSecs) * time.Second,
			Run: func(ctx context.Context) error {
				_, err := reconcileUC.Sweep(ctx)
				return err
			},
		},
		jobs.Job{
			Name:     "credit_interest_accrual",
			Interval: 24 * time.Hour,
			Run: func(ctx context.Context) error {
				_, err := profitUC.AccrueCreditInterest(ctx)
				return err
			},
		},
		jobs.Job{
			Name:     "profit_distribution",
			Interval: 24 * time.Hour,
			Run: func(ctx context.Context) error {
				_, err := profitUC.DistributeAll(ctx)
				return err
			},
		},
		jobs.Job{
			Name:     "trust_refresh",
			Interval: time.Duration(cfg.TrustRefreshSecs) * time.Second,
			Run: func(ctx context.Context) error {
				_, err := trustUC.RefreshAll(ctx, 0)
				return err
			},
		},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	addr := ":" + cfg.AppPort
	log.Printf("listening on %s", addr)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
