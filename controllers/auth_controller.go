package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"leadpilot/config"
	"leadpilot/middleware"
	"leadpilot/models"
	"leadpilot/utils"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

type RegisterRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=8"`
	Name          string `json:"name" validate:"required"`
	WorkspaceName string `json:"workspace_name"`
}

// Register creates the user, their first workspace, and an owner membership
// in one transaction.
func Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	if err := config.DB.Where("email = ?", email).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email already registered"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to hash password"})
	}

	workspaceName := req.WorkspaceName
	if workspaceName == "" {
		workspaceName = req.Name + "'s Workspace"
	}

	var user models.User
	var workspace models.Workspace
	err = config.DB.Transaction(func(tx *gorm.DB) error {
		user = models.User{
			Email:        email,
			PasswordHash: string(hash),
			Name:         req.Name,
			IsActive:     true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		workspace = models.Workspace{Name: workspaceName, OwnerID: user.ID}
		if err := tx.Create(&workspace).Error; err != nil {
			return err
		}

		member := models.WorkspaceMember{
			WorkspaceID: workspace.ID,
			UserID:      user.ID,
			Role:        "owner",
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		// Seed a default pipeline so new workspaces are immediately usable.
		for i, name := range []string{"New", "Contacted", "Qualified", "Won", "Lost"} {
			if err := tx.Create(&models.Stage{
				WorkspaceID: workspace.ID,
				Name:        name,
				Position:    i,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		utils.ReportError(err, "register_failed", map[string]interface{}{"email": email})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create account"})
	}

	accessToken, err := utils.GenerateToken(user.ID, user.TokenVersion, accessTokenTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to issue token"})
	}
	refreshToken, _ := utils.GenerateToken(user.ID, user.TokenVersion, refreshTokenTTL)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user": fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
		"workspace": fiber.Map{
			"id":   workspace.ID,
			"name": workspace.Name,
		},
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}

	var user models.User
	err := config.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}
	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "account disabled"})
	}

	accessToken, err := utils.GenerateToken(user.ID, user.TokenVersion, accessTokenTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to issue token"})
	}
	refreshToken, _ := utils.GenerateToken(user.ID, user.TokenVersion, refreshTokenTTL)

	utils.LogEvent("user_logged_in", map[string]interface{}{"user_id": user.ID})

	return c.JSON(fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	claims, err := utils.ParseToken(req.RefreshToken)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid refresh token"})
	}

	var user models.User
	if err := config.DB.First(&user, claims.UserID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "user not found"})
	}
	if !user.IsActive || user.TokenVersion != claims.TokenVersion {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "token revoked"})
	}

	accessToken, err := utils.GenerateToken(user.ID, user.TokenVersion, accessTokenTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to issue token"})
	}
	return c.JSON(fiber.Map{"access_token": accessToken})
}

// Me returns the authenticated user's profile and workspace memberships.
func Me(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var user models.User
	if err := config.DB.Preload("Memberships").First(&user, userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}

	workspaceIDs := make([]uint, 0, len(user.Memberships))
	for _, m := range user.Memberships {
		workspaceIDs = append(workspaceIDs, m.WorkspaceID)
	}
	var workspaces []models.Workspace
	if len(workspaceIDs) > 0 {
		config.DB.Where("id IN ?", workspaceIDs).Find(&workspaces)
	}

	return c.JSON(fiber.Map{
		"user":       user,
		"workspaces": workspaces,
	})
}
