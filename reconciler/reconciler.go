package reconciler

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/Kellyjunior6387/flixshare/intent"
	"github.com/Kellyjunior6387/flixshare/kafka"
	"github.com/Kellyjunior6387/flixshare/model"
)

type Outcome int

const (
	// OutcomePaid: transaction recorded, membership marked paid.
	OutcomePaid Outcome = iota
	// OutcomeAlreadyProcessed: a transaction with this receipt already
	// exists; a duplicate delivery lost the insert race.
	OutcomeAlreadyProcessed
	// OutcomeFailed: gateway reported a non-zero result (cancelled or
	// failed on the payer side); acknowledged with no writes.
	OutcomeFailed
	// OutcomeUnknownIntent: no intent matches the correlation id.
	OutcomeUnknownIntent
)

// ErrMissingReceipt marks a success callback without an MpesaReceiptNumber
// item. The receipt is the idempotency key, so such a callback cannot be
// recorded: an empty receipt would collide with the next receiptless one.
var ErrMissingReceipt = errors.New("success callback carries no receipt number")

// Reconciler matches asynchronous gateway callbacks to their stored intent
// and applies the financial outcome exactly once. It is the only writer of
// Transaction rows and of RoomMember.payment_status.
type Reconciler struct {
	DB       *gorm.DB
	Intents  *intent.Store
	Producer *kafka.Producer
}

func New(db *gorm.DB, intents *intent.Store, producer *kafka.Producer) *Reconciler {
	return &Reconciler{DB: db, Intents: intents, Producer: producer}
}

// Reconcile drives the callback state machine. Errors are returned only for
// infrastructure failures; every expected gateway behavior (cancellation,
// duplicate delivery, unknown correlation id) maps to an Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, cb *StkCallback) (Outcome, error) {
	if cb.ResultCode != 0 {
		log.Printf("payment %s not completed: code=%d desc=%q",
			cb.MerchantRequestID, cb.ResultCode, cb.ResultDesc)
		return OutcomeFailed, nil
	}

	in, err := r.Intents.Get(ctx, cb.MerchantRequestID)
	if errors.Is(err, intent.ErrIntentNotFound) {
		log.Printf("callback for unknown merchant request id %s rejected", cb.MerchantRequestID)
		return OutcomeUnknownIntent, nil
	}
	if err != nil {
		return 0, err
	}

	meta := cb.Metadata()
	if meta.ReceiptNumber == "" {
		log.Printf("success callback %s has no receipt number, rejecting", cb.MerchantRequestID)
		return 0, ErrMissingReceipt
	}

	tx := model.Transaction{
		PhoneNumber:   meta.PhoneNumber,
		Amount:        meta.Amount,
		ReceiptNumber: meta.ReceiptNumber,
		Status:        model.TxSuccessful,
		Description:   cb.ResultDesc,
		RoomID:        in.RoomID,
		PaidAt:        transactionTime(meta.TransactionDate),
	}
	if err := r.DB.WithContext(ctx).Create(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("receipt %s already reconciled, acknowledging duplicate delivery", meta.ReceiptNumber)
			return OutcomeAlreadyProcessed, nil
		}
		return 0, err
	}

	now := time.Now()
	res := r.DB.WithContext(ctx).Model(&model.RoomMember{}).
		Where("room_id = ? AND user_id = ? AND is_active = ?", in.RoomID, in.UserID, true).
		Updates(map[string]interface{}{
			"payment_status":    model.PaymentPaid,
			"last_payment_date": now,
		})
	if res.Error != nil {
		// The transaction row is already durable; the membership update is
		// retried by support tooling, not by failing the callback.
		log.Printf("failed to mark member paid (room=%s user=%s): %v", in.RoomID, in.UserID, res.Error)
	} else if res.RowsAffected == 0 {
		log.Printf("no active membership for room=%s user=%s, payment recorded without status update",
			in.RoomID, in.UserID)
	}

	r.Producer.PublishPaymentReconciled(map[string]interface{}{
		"room_id":        in.RoomID,
		"user_id":        in.UserID,
		"amount":         meta.Amount,
		"receipt_number": meta.ReceiptNumber,
		"phone_number":   meta.PhoneNumber,
		"paid_at":        now.Format(time.RFC3339),
	})

	return OutcomePaid, nil
}

// transactionTime converts the gateway's YYYYMMDDHHMMSS TransactionDate.
// Returns nil when the item was absent or unparseable; CreatedAt still
// records when we reconciled.
func transactionTime(date int64) *time.Time {
	if date == 0 {
		return nil
	}
	t, err := time.ParseInLocation("20060102150405", strconv.FormatInt(date, 10), time.UTC)
	if err != nil {
		return nil
	}
	return &t
}
