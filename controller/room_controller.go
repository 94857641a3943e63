package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Kellyjunior6387/flixshare/client"
	"github.com/Kellyjunior6387/flixshare/model"
)

type RoomController struct {
	DB   *gorm.DB
	Auth *client.AuthClient
}

// POST /room/create
func (rc *RoomController) Create(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var body struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		ServiceType string  `json:"service_type"`
		Cost        float64 `json:"cost"`
		DueDate     string  `json:"due_date"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if body.Name == "" || body.ServiceType == "" || body.Cost <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "missing required fields"})
	}

	dueDate, err := time.Parse("2006-01-02", body.DueDate)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "due_date must be YYYY-MM-DD"})
	}

	room := model.Room{
		RoomID:      uuid.NewString(),
		OwnerID:     userID,
		Name:        body.Name,
		Description: body.Description,
		ServiceType: body.ServiceType,
		Cost:        body.Cost,
		DueDate:     dueDate,
	}

	err = rc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		// The owner seat starts paid: the owner fronts the subscription.
		owner := model.RoomMember{
			RoomID:        room.RoomID,
			UserID:        userID,
			Role:          model.RoleOwner,
			PaymentStatus: model.PaymentPaid,
			IsActive:      true,
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create room"})
	}

	return c.Status(201).JSON(room)
}

// POST /room/join
func (rc *RoomController) Join(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var body struct {
		RoomID string `json:"room_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.RoomID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "room_id is required"})
	}

	var room model.Room
	if err := rc.DB.Where("room_id = ?", body.RoomID).First(&room).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "room not found"})
	}

	// Leaving deactivates the row instead of deleting it, so a rejoin must
	// reactivate the old seat rather than insert a second one.
	var existing model.RoomMember
	err := rc.DB.Where("room_id = ? AND user_id = ?", room.RoomID, userID).First(&existing).Error
	if err == nil {
		if existing.IsActive {
			return c.Status(409).JSON(fiber.Map{"error": "already a member of this room"})
		}
		updates := map[string]interface{}{
			"is_active":      true,
			"role":           model.RoleMember,
			"payment_status": model.PaymentPending,
			"join_date":      time.Now(),
		}
		if err := rc.DB.Model(&existing).Updates(updates).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to join room"})
		}
		if err := rc.DB.Where("id = ?", existing.ID).First(&existing).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to join room"})
		}
		return c.Status(201).JSON(existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(500).JSON(fiber.Map{"error": "failed to join room"})
	}

	member := model.RoomMember{
		RoomID:        room.RoomID,
		UserID:        userID,
		Role:          model.RoleMember,
		PaymentStatus: model.PaymentPending,
		IsActive:      true,
	}
	if err := rc.DB.Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent join raced us to the insert.
			return c.Status(409).JSON(fiber.Map{"error": "already a member of this room"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to join room"})
	}

	return c.Status(201).JSON(member)
}

// GET /room/list
func (rc *RoomController) List(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	token, _ := c.Locals("token").(string)

	var memberships []model.RoomMember
	if err := rc.DB.Where("user_id = ? AND is_active = ?", userID, true).Find(&memberships).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch rooms"})
	}

	response := []fiber.Map{}
	for _, m := range memberships {
		var room model.Room
		if err := rc.DB.Where("room_id = ?", m.RoomID).First(&room).Error; err != nil {
			continue
		}

		// Display only; fall back to the raw owner id when the lookup fails.
		ownerName := room.OwnerID
		if name, err := rc.Auth.GetUsername(c.Context(), room.OwnerID, token); err == nil && name != "" {
			ownerName = name
		} else if err != nil {
			log.Println("owner username lookup failed:", err)
		}

		response = append(response, fiber.Map{
			"room_id":        room.RoomID,
			"name":           room.Name,
			"service_type":   room.ServiceType,
			"cost":           room.Cost,
			"due_date":       room.DueDate.Format("2006-01-02"),
			"owner":          ownerName,
			"role":           m.Role,
			"payment_status": m.PaymentStatus,
		})
	}

	return c.JSON(response)
}

// GET /room/:room_id
func (rc *RoomController) Detail(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	roomID := c.Params("room_id")

	var membership model.RoomMember
	err := rc.DB.Where("room_id = ? AND user_id = ? AND is_active = ?", roomID, userID, true).
		First(&membership).Error
	if err != nil {
		return c.Status(403).JSON(fiber.Map{"error": "not a member of this room"})
	}

	var room model.Room
	if err := rc.DB.Where("room_id = ?", roomID).First(&room).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "room not found"})
	}

	var members []model.RoomMember
	if err := rc.DB.Where("room_id = ? AND is_active = ?", roomID, true).Find(&members).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch members"})
	}

	return c.JSON(fiber.Map{
		"room":    room,
		"members": members,
	})
}

// POST /room/:room_id/leave
func (rc *RoomController) Leave(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	roomID := c.Params("room_id")

	var membership model.RoomMember
	err := rc.DB.Where("room_id = ? AND user_id = ? AND is_active = ?", roomID, userID, true).
		First(&membership).Error
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "not a member of this room"})
	}
	if membership.Role == model.RoleOwner {
		return c.Status(400).JSON(fiber.Map{"error": "owner cannot leave, delete the room instead"})
	}

	if err := rc.DB.Model(&membership).Update("is_active", false).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to leave room"})
	}
	return c.JSON(fiber.Map{"message": "left room"})
}

// POST /room/:room_id/remove-member
func (rc *RoomController) RemoveMember(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	roomID := c.Params("room_id")

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}

	var room model.Room
	if err := rc.DB.Where("room_id = ?", roomID).First(&room).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "room not found"})
	}
	if room.OwnerID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "only the owner can remove members"})
	}
	if body.UserID == room.OwnerID {
		return c.Status(400).JSON(fiber.Map{"error": "owner seat cannot be removed"})
	}

	res := rc.DB.Model(&model.RoomMember{}).
		Where("room_id = ? AND user_id = ? AND is_active = ?", roomID, body.UserID, true).
		Update("is_active", false)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to remove member"})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "member not found"})
	}

	return c.JSON(fiber.Map{"message": "member removed"})
}

// DELETE /room/:room_id
func (rc *RoomController) Delete(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	roomID := c.Params("room_id")

	var room model.Room
	if err := rc.DB.Where("room_id = ?", roomID).First(&room).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "room not found"})
	}
	if room.OwnerID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "only the owner can delete a room"})
	}

	err := rc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&model.RoomMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&room).Error
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete room"})
	}

	return c.SendStatus(204)
}
