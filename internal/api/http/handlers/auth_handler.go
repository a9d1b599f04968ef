package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,})+$`)

// AuthHandler serves signup, login and profile endpoints.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// Signup POST /auth/signup.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError([]string{"Invalid request payload"})
	}

	var details []string
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 || len(name) > 100 {
		details = append(details, "Name must be between 2 and 100 characters")
	}
	if !emailPattern.MatchString(strings.TrimSpace(req.Email)) {
		details = append(details, "Please provide a valid email")
	}
	if len(req.Password) < 6 {
		details = append(details, "Password must be at least 6 characters long")
	}
	if req.Role != "" && !domain.ValidRole(req.Role) {
		details = append(details, "Role must be either agent or admin")
	}
	if len(details) > 0 {
		return apperrors.NewValidationError(details)
	}

	user, token, err := h.service.Signup(c.UserContext(), name, req.Email, req.Password, req.Role)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.OKMessage("User created successfully", dto.AuthData{
		Token: token,
		User:  dto.NewUserResponse(user),
	}))
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError([]string{"Invalid request payload"})
	}

	var details []string
	if !emailPattern.MatchString(strings.TrimSpace(req.Email)) {
		details = append(details, "Please provide a valid email")
	}
	if req.Password == "" {
		details = append(details, "Password is required")
	}
	if len(details) > 0 {
		return apperrors.NewValidationError(details)
	}

	user, token, err := h.service.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(dto.OKMessage("Login successful", dto.AuthData{
		Token: token,
		User:  dto.NewUserResponse(user),
	}))
}

// Profile GET /auth/profile.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Access token required")
	}
	return c.JSON(dto.OK(fiber.Map{"user": dto.NewUserResponse(principal.User)}))
}
