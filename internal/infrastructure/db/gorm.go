package db

import (
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/outbox"
	"coopfund-backend/internal/domain/profit"
	"coopfund-backend/internal/domain/trust"
)

func OpenGorm(dsn string) (*gorm.DB, error) {
	return OpenGormWithDialector(mysql.Open(dsn))
}

func OpenGormWithDialector(dial gorm.Dialector) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
	db, err := gorm.Open(dial, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(30)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	log.Println("gorm: connected")
	return db, nil
}

// Migrate creates or updates every table the engine persists to.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&group.Group{},
		&group.Membership{},
		&group.MemberBalance{},
		&group.Deposit{},
		&group.PolicyRule{},
		&group.Alert{},
		&ledger.Entry{},
		&ledger.CreditBalance{},
		&loan.LoanRequest{},
		&loan.VotingSession{},
		&loan.VoteRecord{},
		&loan.Loan{},
		&loan.ScheduleEntry{},
		&loan.Repayment{},
		&loan.PaymentAudit{},
		&loan.PaymentApproval{},
		&outbox.Transfer{},
		&outbox.Attempt{},
		&profit.Pool{},
		&profit.Distribution{},
		&profit.ShareDetail{},
		&trust.Score{},
		&trust.HistoryEntry{},
	)
}
