package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Kellyjunior6387/flixshare/controller"
)

// Register wires the HTTP surface. The auth middleware is injected so tests
// can substitute a stub. The gateway callback stays outside the auth group:
// it is called by the payment gateway, not by users, and accepts POST only.
func Register(app *fiber.App, auth fiber.Handler, pc *controller.PaymentController, rc *controller.RoomController) {
	payment := app.Group("/payment")
	payment.Post("/stk-push", auth, pc.Initiate)
	payment.Post("/callback", pc.Callback)
	payment.Get("/transactions/:room_id", auth, pc.ListRoomTransactions)

	room := app.Group("/room", auth)
	room.Post("/create", rc.Create)
	room.Post("/join", rc.Join)
	room.Get("/list", rc.List)
	room.Get("/:room_id", rc.Detail)
	room.Post("/:room_id/leave", rc.Leave)
	room.Post("/:room_id/remove-member", rc.RemoveMember)
	room.Delete("/:room_id", rc.Delete)
}
