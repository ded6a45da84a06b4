package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"colorbet/config"
	"colorbet/metrics"
	"colorbet/models"
)

var ErrMissingReference = &Error{KindValidation, "MISSING_REFERENCE", "source reference is required"}

type Commission struct {
	Level         int           `json:"level"`
	BeneficiaryID uint          `json:"beneficiary_id"`
	Rate          float64       `json:"rate"`
	Amount        models.Amount `json:"amount"`
}

type commissionPolicy struct {
	rates  []decimal.Decimal
	raw    []float64
	bucket Bucket
}

// ReferralEngine pays per-level commissions up a user's referral chain. It
// reads User.ReferredBy but never changes it.
type ReferralEngine struct {
	db       *gorm.DB
	ledger   *Ledger
	maxDepth int
	policies map[models.EventType]commissionPolicy
	log      logrus.FieldLogger
}

func NewReferralEngine(db *gorm.DB, cfg config.ReferralConfig, ledger *Ledger, log logrus.FieldLogger) *ReferralEngine {
	return &ReferralEngine{
		db:       db,
		ledger:   ledger,
		maxDepth: cfg.MaxDepth,
		policies: map[models.EventType]commissionPolicy{
			models.EventDeposit: newPolicy(cfg.DepositRates, cfg.DepositCredit),
			models.EventBet:     newPolicy(cfg.BetRates, cfg.BetCredit),
		},
		log: log,
	}
}

func newPolicy(rates []float64, credit string) commissionPolicy {
	p := commissionPolicy{raw: rates, bucket: Bucket(credit)}
	for _, r := range rates {
		p.rates = append(p.rates, decimal.NewFromFloat(r))
	}
	return p
}

// ApplyCommission runs the cascade for one qualifying event in its own
// transaction. sourceRef identifies the event (deposit reference, bet id);
// a second call with the same reference pays nothing and returns
// ErrCommissionApplied.
func (r *ReferralEngine) ApplyCommission(ctx context.Context, sourceUserID uint, amount models.Amount, event models.EventType, sourceRef string) ([]Commission, error) {
	var paid []Commission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		paid, err = r.applyTx(tx, sourceUserID, amount, event, sourceRef)
		return err
	})
	if err != nil {
		return nil, storageErr("apply commission", err)
	}
	for _, c := range paid {
		metrics.CommissionPaid(string(event), strconv.Itoa(c.Level), c.Amount.Float64())
	}
	return paid, nil
}

func (r *ReferralEngine) applyTx(tx *gorm.DB, sourceUserID uint, amount models.Amount, event models.EventType, sourceRef string) ([]Commission, error) {
	policy, ok := r.policies[event]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvariant, event)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if sourceRef == "" {
		return nil, ErrMissingReference
	}

	var applied int64
	if err := tx.Model(&models.CommissionRecord{}).
		Where("source_ref = ? AND event_type = ?", sourceRef, event).
		Count(&applied).Error; err != nil {
		return nil, storageErr("check commission", err)
	}
	if applied > 0 {
		return nil, ErrCommissionApplied
	}

	var source models.User
	err := tx.Select("id", "referred_by").First(&source, sourceUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("load source user", err)
	}

	depth := min(r.maxDepth, len(policy.rates))
	visited := map[uint]bool{source.ID: true}
	next := source.ReferredBy

	var paid []Commission
	for level := 1; level <= depth && next != nil; level++ {
		log := r.log.WithFields(logrus.Fields{
			"source_user": source.ID,
			"referrer":    *next,
			"level":       level,
			"event":       event,
		})
		if visited[*next] {
			log.WithError(ErrInvariant).Warn("referral cycle detected, stopping cascade")
			break
		}
		visited[*next] = true

		referrer, err := r.ledger.LockUser(tx, *next)
		if errors.Is(err, ErrUserNotFound) {
			log.WithError(ErrInvariant).Warn("dangling referrer, stopping cascade")
			break
		}
		if err != nil {
			return nil, err
		}

		commission := amount.MulRate(policy.rates[level-1])
		if commission > 0 {
			record := models.CommissionRecord{
				PayerUserID:       source.ID,
				BeneficiaryUserID: referrer.ID,
				Level:             level,
				Rate:              policy.raw[level-1],
				SourceAmount:      amount,
				CommissionAmount:  commission,
				EventType:         event,
				SourceRef:         sourceRef,
			}
			if err := tx.Create(&record).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return nil, ErrCommissionApplied
				}
				return nil, storageErr("commission record", err)
			}

			if err := r.ledger.Credit(tx, referrer, commission, policy.bucket, Entry{
				Type:  models.TrxCommission,
				RefID: sourceRef,
				Note:  fmt.Sprintf("level %d %s commission from user %d", level, event, source.ID),
			}); err != nil {
				return nil, err
			}

			if err := tx.Model(&models.User{}).Where("id = ?", referrer.ID).
				Update("referral_earnings", gorm.Expr("referral_earnings + ?", int64(commission))).Error; err != nil {
				return nil, storageErr("referral earnings", err)
			}

			paid = append(paid, Commission{
				Level:         level,
				BeneficiaryID: referrer.ID,
				Rate:          policy.raw[level-1],
				Amount:        commission,
			})
		}
		next = referrer.ReferredBy
	}
	return paid, nil
}

// Records lists commission rows credited to a beneficiary, newest first.
func (r *ReferralEngine) Records(ctx context.Context, beneficiaryID uint, limit int) ([]models.CommissionRecord, error) {
	var rows []models.CommissionRecord
	err := r.db.WithContext(ctx).Where("beneficiary_user_id = ?", beneficiaryID).
		Order("id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, storageErr("commission records", err)
	}
	return rows, nil
}
