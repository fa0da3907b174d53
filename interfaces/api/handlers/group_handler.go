package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"facemanager/domain/models"
	"facemanager/domain/services"
	"facemanager/pkg/logger"
	"facemanager/pkg/utils"
)

type GroupHandler struct {
	groupService services.GroupService
	validate     *validator.Validate
}

func NewGroupHandler(groupService services.GroupService, validate *validator.Validate) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
		validate:     validate,
	}
}

// FaceRequest is one face in a batch or manual group creation.
type FaceRequest struct {
	FaceID         string              `json:"faceId" validate:"required"`
	BoundingBox    *models.BoundingBox `json:"boundingBox"`
	Confidence     float64             `json:"confidence"`
	MatchedFaceIDs []string            `json:"matchedFaceIds"`
	FileID         string              `json:"fileId"`
}

type ProcessBatchRequest struct {
	FileID      string        `json:"fileId" validate:"required"`
	InterviewID *string       `json:"interviewId"`
	Faces       []FaceRequest `json:"faces" validate:"required,min=1,dive"`
}

type CreateGroupRequest struct {
	Faces []FaceRequest `json:"faces" validate:"required,min=1,dive"`
	Name  *string       `json:"name"`
}

type AddFaceRequest struct {
	FaceID string  `json:"faceId" validate:"required"`
	FileID *string `json:"fileId"`
}

type RenameGroupRequest struct {
	PersonName string `json:"personName" validate:"required"`
}

type MergeGroupsRequest struct {
	GroupIDs []string `json:"groupIds" validate:"required,min=2,dive,required"`
}

func toFaceInputs(faces []FaceRequest) []services.FaceInput {
	inputs := make([]services.FaceInput, len(faces))
	for i, f := range faces {
		inputs[i] = services.FaceInput{
			FaceID:         f.FaceID,
			BoundingBox:    f.BoundingBox,
			Confidence:     f.Confidence,
			MatchedFaceIDs: f.MatchedFaceIDs,
			FileID:         f.FileID,
		}
	}
	return inputs
}

// ProcessBatch ingests one file's extracted faces and groups them.
// @Summary Process a batch of faces from one source file
// @Tags FaceGroups
// @Accept json
// @Produce json
// @Param user_id path string true "User ID"
// @Param request body ProcessBatchRequest true "Batch"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups/process [post]
func (h *GroupHandler) ProcessBatch(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	var req ProcessBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	result, err := h.groupService.ProcessBatch(c.UserContext(), userID, req.FileID, toFaceInputs(req.Faces), req.InterviewID)
	if err != nil {
		return h.serviceError(c, "process_batch", err)
	}

	logger.API("batch_processed", "Face batch processed", map[string]interface{}{
		"user_id":         userID,
		"file_id":         req.FileID,
		"processed_count": result.ProcessedCount,
		"group_count":     len(result.Groups),
	})
	return utils.SuccessResponse(c, "Batch processed", result)
}

// ListGroups returns every face group of the user.
// @Summary List face groups
// @Tags FaceGroups
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups [get]
func (h *GroupHandler) ListGroups(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	groups, err := h.groupService.ListGroups(c.UserContext(), userID)
	if err != nil {
		return h.serviceError(c, "list_groups", err)
	}

	return utils.SuccessResponse(c, "Groups retrieved", fiber.Map{
		"groups": groups,
		"count":  len(groups),
	})
}

// GetGroup returns one face group.
// @Summary Get a face group
// @Tags FaceGroups
// @Produce json
// @Param user_id path string true "User ID"
// @Param group_id path string true "Group ID"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups/{group_id} [get]
func (h *GroupHandler) GetGroup(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	groupID := c.Params("group_id")

	group, err := h.groupService.GetGroup(c.UserContext(), userID, groupID)
	if err != nil {
		return h.serviceError(c, "get_group", err)
	}
	return utils.SuccessResponse(c, "Group retrieved", group)
}

// CreateGroup builds a group from explicitly chosen faces.
// @Summary Create a face group from chosen faces
// @Tags FaceGroups
// @Accept json
// @Produce json
// @Param user_id path string true "User ID"
// @Param request body CreateGroupRequest true "Faces"
// @Success 201 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups [post]
func (h *GroupHandler) CreateGroup(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	var req CreateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	group, err := h.groupService.CreateGroupWithFaces(c.UserContext(), userID, toFaceInputs(req.Faces), req.Name)
	if err != nil {
		return h.serviceError(c, "create_group", err)
	}
	return utils.CreatedResponse(c, "Group created", group)
}

// AddFace adds a face to a group; a face grouped elsewhere is moved.
// @Summary Add a face to a group
// @Tags FaceGroups
// @Accept json
// @Produce json
// @Param user_id path string true "User ID"
// @Param group_id path string true "Group ID"
// @Param request body AddFaceRequest true "Face"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups/{group_id}/faces [post]
func (h *GroupHandler) AddFace(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	groupID := c.Params("group_id")

	var req AddFaceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	if err := h.groupService.AddFaceToGroup(c.UserContext(), userID, groupID, req.FaceID, req.FileID); err != nil {
		return h.serviceError(c, "add_face", err)
	}
	return utils.SuccessResponse(c, "Face added to group", nil)
}

// RemoveFace removes a face from a group.
// @Summary Remove a face from a group
// @Tags FaceGroups
// @Produce json
// @Param user_id path string true "User ID"
// @Param group_id path string true "Group ID"
// @Param face_id path string true "Face ID"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups/{group_id}/faces/{face_id} [delete]
func (h *GroupHandler) RemoveFace(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	groupID := c.Params("group_id")
	faceID := c.Params("face_id")

	if err := h.groupService.RemoveFaceFromGroup(c.UserContext(), userID, groupID, faceID); err != nil {
		return h.serviceError(c, "remove_face", err)
	}
	return utils.SuccessResponse(c, "Face removed from group", nil)
}

// RenameGroup sets the person name and promotes the group to named.
// @Summary Rename a face group
// @Tags FaceGroups
// @Accept json
// @Produce json
// @Param user_id path string true "User ID"
// @Param group_id path string true "Group ID"
// @Param request body RenameGroupRequest true "Name"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups/{group_id} [patch]
func (h *GroupHandler) RenameGroup(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	groupID := c.Params("group_id")

	var req RenameGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	group, err := h.groupService.RenameGroup(c.UserContext(), userID, groupID, req.PersonName)
	if err != nil {
		return h.serviceError(c, "rename_group", err)
	}
	return utils.SuccessResponse(c, "Group renamed", group)
}

// MergeGroups folds the listed groups into the first one.
// @Summary Merge face groups
// @Tags FaceGroups
// @Accept json
// @Produce json
// @Param user_id path string true "User ID"
// @Param request body MergeGroupsRequest true "Group IDs, first is kept"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups/merge [post]
func (h *GroupHandler) MergeGroups(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	var req MergeGroupsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	primaryID, err := h.groupService.MergeGroups(c.UserContext(), userID, req.GroupIDs)
	if err != nil {
		return h.serviceError(c, "merge_groups", err)
	}
	return utils.SuccessResponse(c, "Groups merged", fiber.Map{"groupId": primaryID})
}

// DeleteGroup removes a group and its member face docs.
// @Summary Delete a face group
// @Tags FaceGroups
// @Produce json
// @Param user_id path string true "User ID"
// @Param group_id path string true "Group ID"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups/{group_id} [delete]
func (h *GroupHandler) DeleteGroup(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	groupID := c.Params("group_id")

	if err := h.groupService.DeleteGroup(c.UserContext(), userID, groupID); err != nil {
		return h.serviceError(c, "delete_group", err)
	}
	return utils.SuccessResponse(c, "Group deleted", nil)
}

// ClearAllGroups wipes every group of the user. Test user only.
// @Summary Clear all face groups (test user only)
// @Tags FaceGroups
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} utils.Response
// @Router /api/v1/users/{user_id}/face-groups [delete]
func (h *GroupHandler) ClearAllGroups(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	deleted, err := h.groupService.ClearAllGroups(c.UserContext(), userID)
	if err != nil {
		return h.serviceError(c, "clear_groups", err)
	}
	return utils.SuccessResponse(c, "Groups cleared", fiber.Map{"deletedCount": deleted})
}

// serviceError maps service sentinels to HTTP statuses.
func (h *GroupHandler) serviceError(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return utils.BadRequestResponse(c, "Invalid input", err)
	case errors.Is(err, services.ErrGroupNotFound):
		return utils.NotFoundResponse(c, "Group not found")
	case errors.Is(err, services.ErrFaceNotFound):
		return utils.NotFoundResponse(c, "Face not found")
	case errors.Is(err, services.ErrFileNotFound):
		return utils.NotFoundResponse(c, "Source file not found")
	case errors.Is(err, services.ErrForbidden):
		return utils.ForbiddenResponse(c, "Operation not allowed for this user")
	default:
		logger.APIError(action, "Request failed", err, map[string]interface{}{
			"path":   c.Path(),
			"method": c.Method(),
		})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error", err)
	}
}
