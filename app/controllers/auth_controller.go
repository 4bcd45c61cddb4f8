package controllers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/internal/pkg/auth"
	"github.com/ManuelReschke/SubFox/internal/pkg/session"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

type credentialsForm struct {
	Email    string `json:"email" form:"email" validate:"max=200"`
	Password string `json:"password" form:"password" validate:"max=1024"`
}

type changePasswordForm struct {
	CurrentPassword string `json:"current_password" form:"current_password" validate:"max=1024"`
	NewPassword     string `json:"new_password" form:"new_password" validate:"max=1024"`
}

// AuthController serves login, registration and password changes.
type AuthController struct {
	auth     *auth.Service
	validate *validator.Validate
}

func NewAuthController(svc *auth.Service) *AuthController {
	return &AuthController{auth: svc, validate: validator.New()}
}

func (a *AuthController) parse(c *fiber.Ctx, out interface{}) bool {
	if err := c.BodyParser(out); err != nil {
		return false
	}
	return a.validate.Struct(out) == nil
}

func badAuthRequest(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(auth.Result{
		Success: false,
		Code:    auth.InvalidCredentials,
		Message: "Invalid email or password.",
	})
}

func (a *AuthController) HandleLogin(c *fiber.Ctx) error {
	var form credentialsForm
	if !a.parse(c, &form) {
		return badAuthRequest(c)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := a.auth.Login(ctx, form.Email, form.Password)
	if err != nil {
		return internalError(c, err)
	}
	if !res.Success {
		return c.Status(authStatus(res.Code)).JSON(res)
	}

	if err := session.Login(c, res.User.ID, res.User.Email); err != nil {
		return internalError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":  true,
		"user":     res.User,
		"redirect": "/",
	})
}

func (a *AuthController) HandleRegister(c *fiber.Ctx) error {
	var form credentialsForm
	if !a.parse(c, &form) {
		return badAuthRequest(c)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := a.auth.Register(ctx, form.Email, form.Password)
	if err != nil {
		return internalError(c, err)
	}
	if !res.Success {
		return c.Status(authStatus(res.Code)).JSON(res)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (a *AuthController) HandleLogout(c *fiber.Ctx) error {
	if err := session.Logout(c); err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (a *AuthController) HandleChangePassword(c *fiber.Ctx) error {
	var form changePasswordForm
	if !a.parse(c, &form) {
		return badAuthRequest(c)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := a.auth.ChangePassword(ctx, usercontext.GetUserID(c), form.CurrentPassword, form.NewPassword)
	if err != nil {
		return internalError(c, err)
	}
	if !res.Success {
		return c.Status(authStatus(res.Code)).JSON(res)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Password updated."})
}
