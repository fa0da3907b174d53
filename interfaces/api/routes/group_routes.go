package routes

import (
	"github.com/gofiber/fiber/v2"

	"facemanager/interfaces/api/handlers"
)

func SetupGroupRoutes(router fiber.Router, h *handlers.Handlers) {
	groups := router.Group("/users/:user_id/face-groups")

	// Batch ingestion
	groups.Post("/process", h.Group.ProcessBatch)

	// Group CRUD
	groups.Get("/", h.Group.ListGroups)
	groups.Post("/", h.Group.CreateGroup)
	groups.Delete("/", h.Group.ClearAllGroups) // test user only
	groups.Post("/merge", h.Group.MergeGroups)
	groups.Get("/:group_id", h.Group.GetGroup)
	groups.Patch("/:group_id", h.Group.RenameGroup)
	groups.Delete("/:group_id", h.Group.DeleteGroup)

	// Membership
	groups.Post("/:group_id/faces", h.Group.AddFace)
	groups.Delete("/:group_id/faces/:face_id", h.Group.RemoveFace)
}
