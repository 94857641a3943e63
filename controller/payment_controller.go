package controller

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Kellyjunior6387/flixshare/intent"
	"github.com/Kellyjunior6387/flixshare/model"
	"github.com/Kellyjunior6387/flixshare/mpesa"
	"github.com/Kellyjunior6387/flixshare/reconciler"
)

type PaymentController struct {
	DB         *gorm.DB
	Gateway    *mpesa.Client
	Intents    *intent.Store
	Reconciler *reconciler.Reconciler
}

// POST /payment/stk-push
func (pc *PaymentController) Initiate(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var body struct {
		PhoneNumber string  `json:"phone_number"`
		Amount      float64 `json:"amount"`
		RoomID      string  `json:"room_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if body.PhoneNumber == "" || body.Amount <= 0 || body.RoomID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "missing required fields"})
	}

	var room model.Room
	if err := pc.DB.Where("room_id = ?", body.RoomID).First(&room).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "room not found"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	amount := strconv.FormatFloat(body.Amount, 'f', -1, 64)
	resp, status, raw, err := pc.Gateway.STKPush(ctx, body.PhoneNumber, amount, room.Name)
	if err != nil {
		log.Println("stk push failed:", err)
		return c.Status(502).JSON(fiber.Map{"error": "payment gateway unavailable"})
	}

	// Only a 2xx acknowledgment with a correlation id creates an intent;
	// everything else is passed through with no local writes.
	if status >= 200 && status < 300 && resp.MerchantRequestID != "" {
		in := &model.PaymentIntent{
			MerchantRequestID: resp.MerchantRequestID,
			UserID:            userID,
			RoomID:            room.RoomID,
			RoomName:          room.Name,
			PhoneNumber:       body.PhoneNumber,
		}
		if err := pc.Intents.Put(ctx, in); err != nil {
			log.Println("failed to persist payment intent:", err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to record payment request"})
		}
	}

	c.Set("Content-Type", "application/json")
	return c.Status(status).Send(raw)
}

// POST /payment/callback — invoked by the gateway only, no auth.
func (pc *PaymentController) Callback(c *fiber.Ctx) error {
	cb, err := reconciler.ParseCallback(c.Body())
	if err != nil {
		log.Printf("malformed gateway callback: %v (body=%s)", err, c.Body())
		return c.Status(500).JSON(fiber.Map{"error": "failed to process callback"})
	}

	outcome, err := pc.Reconciler.Reconcile(c.Context(), cb)
	if err != nil {
		log.Printf("reconciliation error for %s: %v", cb.MerchantRequestID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to process callback"})
	}

	switch outcome {
	case reconciler.OutcomeUnknownIntent:
		return c.Status(404).JSON(fiber.Map{"error": "unknown merchant request id"})
	case reconciler.OutcomeFailed:
		return c.JSON(fiber.Map{"message": "Payment failed or cancelled"})
	default:
		return c.JSON(fiber.Map{"message": "Callback processed"})
	}
}

// GET /payment/transactions/:room_id — audit listing for a room.
func (pc *PaymentController) ListRoomTransactions(c *fiber.Ctx) error {
	roomID := c.Params("room_id")

	var txs []model.Transaction
	if err := pc.DB.Where("room_id = ?", roomID).Order("created_at DESC").Find(&txs).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch transactions"})
	}
	return c.JSON(txs)
}
