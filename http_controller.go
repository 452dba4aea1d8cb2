package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// SessionOperations is what the HTTP controller needs from a session store.
type SessionOperations interface {
	StateReader
	SignUp(ctx context.Context, email, password string) error
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
}

var _ SessionOperations = (*SessionStore)(nil)

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetGet).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	return controller
}

type AuthControllerRoutes struct {
	Login         string
	Logout        string
	Register      string
	PasswordReset string
}

type AuthControllerViews struct {
	Login         string
	Register      string
	PasswordReset string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Store        SessionOperations
	Config       Config
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerStore(store SessionOperations) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Store = store
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Config:       DefaultOptions(""),
		Routes: &AuthControllerRoutes{
			Login:         "/login",
			Logout:        "/logout",
			Register:      "/signup",
			PasswordReset: "/forgot-password",
		},
		Views: &AuthControllerViews{
			Login:         "login",
			Register:      "signup",
			PasswordReset: "forgot_password",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Store == nil {
		panic("Missing SessionOperations in auth controller...")
	}

	return c
}

func (a *AuthController) signedIn() bool {
	st := a.Store.State()
	return st.Ready && st.Identity != nil
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	if a.signedIn() {
		return ctx.Redirect(a.Config.GetRejectedRouteDefault(), router.StatusSeeOther)
	}

	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": titleSignInError,
		}).Status(fiber.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("login request", "email", payload.Email)
	}

	notes := &NotificationCollector{}
	if err := a.Store.SignIn(WithNotifier(ctx.Context(), notes), payload.Email, payload.Password); err != nil {
		n, _ := notes.Last()
		status := fiber.StatusUnauthorized
		if IsProviderError(err) {
			status = fiber.StatusBadGateway
		}
		return flash.WithError(ctx, flashData(n)).
			Status(status).
			Render(a.Views.Login, router.ViewContext{
				"record": payload,
				"errors": map[string]string{"authentication": n.Description},
				"unverified": IsUnverifiedEmail(err),
			})
	}

	n, _ := notes.Last()
	redirect := a.rejectedRoute(ctx)
	a.Logger.Info("login redirect", "to", redirect)

	return flash.WithSuccess(ctx, flashData(n)).Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	notes := &NotificationCollector{}
	if err := a.Store.SignOut(WithNotifier(ctx.Context(), notes)); err != nil {
		// the visitor still navigates away, local state may be stale
		a.Logger.Error("logout failed", "error", err)
		n, _ := notes.Last()
		return flash.WithError(ctx, flashData(n)).Redirect("/", router.StatusSeeOther)
	}

	n, _ := notes.Last()
	return flash.WithSuccess(ctx, flashData(n)).Redirect("/", router.StatusSeeOther)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	if a.signedIn() {
		return ctx.Redirect(a.Config.GetRejectedRouteDefault(), router.StatusSeeOther)
	}

	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationCreatePayload{},
	})
}

// RegistrationCreatePayload is the form paylaod
type RegistrationCreatePayload struct {
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, EmailRules...),
		validation.Field(&r.Password, PasswordRules...),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": titleSignUpError,
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("register user", "payload", print.MaybePrettyJSON(map[string]string{"email": payload.Email}))
	}

	notes := &NotificationCollector{}
	if err := a.Store.SignUp(WithNotifier(ctx.Context(), notes), payload.Email, payload.Password); err != nil {
		n, _ := notes.Last()
		return flash.WithError(ctx, flashData(n)).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"form": n.Description},
		})
	}

	n, _ := notes.Last()
	return flash.WithSuccess(ctx, flashData(n)).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AuthController) PasswordResetGet(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"sent":   false,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, EmailRules...),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": titleResetError,
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	notes := &NotificationCollector{}
	if err := a.Store.ResetPassword(WithNotifier(ctx.Context(), notes), payload.Email); err != nil {
		n, _ := notes.Last()
		return flash.WithError(ctx, flashData(n)).Render(a.Views.PasswordReset, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"form": n.Description},
		})
	}

	n, _ := notes.Last()
	return flash.WithSuccess(ctx, flashData(n)).Render(a.Views.PasswordReset, router.ViewContext{
		"record": payload,
		"sent":   true,
	})
}

// rejectedRoute returns the route stored by the guard, or the default, and
// clears the cookie.
func (a *AuthController) rejectedRoute(ctx router.Context) string {
	key := a.Config.GetRejectedRouteKey()
	r := ctx.Cookies(key)
	if r == "" {
		r = a.Config.GetRejectedRouteDefault()
	}

	ctx.Cookie(&router.Cookie{
		Name:     key,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})

	return r
}

func flashData(n Notification) router.ViewContext {
	if n.Variant == VariantDestructive {
		return router.ViewContext{
			"system_message": n.Title,
			"error_message":  n.Description,
		}
	}
	return router.ViewContext{
		"system_message": n.Title,
		"message":        n.Description,
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": Describe(err),
	})
}
