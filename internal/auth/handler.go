package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/member-gate/internal/metrics"
	"github.com/yourusername/member-gate/internal/user"
)

// 画面に表示する失敗メッセージ
const (
	MsgMissingCredentials = "Missing credentials."
	MsgNoSuchUser         = "No user with that email."
	MsgIncorrectPassword  = "Incorrect password."
	MsgInvalidCredentials = "Invalid email or password."
	MsgEmailExists        = "Email already exists !"
	MsgInvalidForm        = "Could not read the submitted form."
)

// Renderer は HTML ページを描画します。
type Renderer interface {
	Render(c *gin.Context, status int, page string, data gin.H)
}

// ページ名
const (
	PageIndex    = "index"
	PageLogin    = "login"
	PageRegister = "register"
)

// HandlerOptions は Handler の任意設定です。
type HandlerOptions struct {
	// UniformFailures が true の場合、未登録とパスワード不一致を同じメッセージで返します。
	UniformFailures bool
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
}

// Handler はログイン・登録・ログアウトの HTTP ハンドラーです。
type Handler struct {
	strategy  Strategy
	registrar *Registrar
	sessions  *SessionManager
	render    Renderer
	opts      HandlerOptions
}

// NewHandler は Handler を作成します。
func NewHandler(strategy Strategy, registrar *Registrar, sessions *SessionManager, render Renderer, opts HandlerOptions) *Handler {
	return &Handler{
		strategy:  strategy,
		registrar: registrar,
		sessions:  sessions,
		render:    render,
		opts:      opts,
	}
}

// Routes はルートを登録します。
func (h *Handler) Routes(r gin.IRouter) {
	authed := h.sessions.RequireAuthenticated()
	anon := h.sessions.RequireAnonymous()

	r.GET(HomePath, authed, h.Index)
	r.GET(LoginPath, anon, h.LoginPage)
	r.POST(LoginPath, anon, h.Login)
	r.GET("/register", anon, h.RegisterPage)
	r.POST("/register", anon, h.Register)
	r.DELETE("/logout", h.Logout)
}

// Index はログイン後のトップページです。
func (h *Handler) Index(c *gin.Context) {
	p := PrincipalFrom(c)
	if p == nil {
		c.Redirect(http.StatusFound, LoginPath)
		return
	}
	h.render.Render(c, http.StatusOK, PageIndex, gin.H{"name": p.Name})
}

// LoginPage はログインフォームを表示します。直前の失敗メッセージがあれば一度だけ表示します。
func (h *Handler) LoginPage(c *gin.Context) {
	flashes, err := h.sessions.Flashes(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	h.render.Render(c, http.StatusOK, PageLogin, gin.H{"messages": flashes})
}

type loginForm struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Login は資格情報を検証し、成功すればセッションを確立します。
func (h *Handler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		// 読めない入力は資格情報なしとして扱う
		h.opts.Logger.Debug().Err(err).Msg("malformed login request")
		h.rejectLogin(c, ReasonMissingCredentials)
		return
	}

	outcome, err := h.strategy.Authenticate(c.Request.Context(), Attempt{
		Identifier: form.Email,
		Password:   form.Password,
	})
	if err != nil {
		h.opts.Metrics.ObserveLogin(metrics.ResultError)
		h.opts.Logger.Error().Err(err).Str("strategy", h.strategy.Name()).Msg("authentication failed with error")
		respondWithError(c, err)
		return
	}

	if !outcome.Succeeded() {
		h.rejectLogin(c, outcome.Reason)
		return
	}

	if err := h.sessions.Establish(c, *outcome.Principal); err != nil {
		h.opts.Metrics.ObserveLogin(metrics.ResultError)
		respondWithError(c, err)
		return
	}
	h.opts.Metrics.ObserveLogin(metrics.ResultSuccess)
	h.opts.Logger.Info().Str("user_id", outcome.Principal.UserID).Msg("login succeeded")
	c.Redirect(http.StatusFound, HomePath)
}

func (h *Handler) rejectLogin(c *gin.Context, reason Reason) {
	h.opts.Metrics.ObserveLogin(loginResult(reason))
	h.opts.Logger.Info().Str("reason", string(reason)).Msg("login rejected")
	if err := h.sessions.AddFlash(c, h.failureMessage(reason)); err != nil {
		respondWithError(c, err)
		return
	}
	c.Redirect(http.StatusFound, LoginPath)
}

// RegisterPage は登録フォームを表示します。
func (h *Handler) RegisterPage(c *gin.Context) {
	h.render.Render(c, http.StatusOK, PageRegister, gin.H{"name": "", "email": ""})
}

type registerForm struct {
	Name     string `form:"name" json:"name"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Register は新規ユーザーを登録し、ログイン画面へリダイレクトします。
func (h *Handler) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		h.opts.Metrics.ObserveRegistration(metrics.ResultInvalid)
		h.opts.Logger.Debug().Err(err).Msg("malformed registration request")
		h.render.Render(c, http.StatusBadRequest, PageRegister, gin.H{
			"message": MsgInvalidForm,
			"name":    "",
			"email":   "",
		})
		return
	}

	u, err := h.registrar.Register(c.Request.Context(), RegistrationInput{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
	})

	var verr *ValidationError
	switch {
	case err == nil:
		h.opts.Metrics.ObserveRegistration(metrics.ResultSuccess)
		h.opts.Logger.Info().Str("user_id", u.ID).Msg("user registered")
		c.Redirect(http.StatusFound, LoginPath)
	case errors.As(err, &verr):
		h.opts.Metrics.ObserveRegistration(metrics.ResultInvalid)
		h.render.Render(c, http.StatusBadRequest, PageRegister, gin.H{
			"errors": verr.Fields,
			"name":   form.Name,
			"email":  form.Email,
		})
	case errors.Is(err, user.ErrConflict):
		h.opts.Metrics.ObserveRegistration(metrics.ResultConflict)
		h.render.Render(c, http.StatusBadRequest, PageRegister, gin.H{
			"message": MsgEmailExists,
			"name":    form.Name,
			"email":   form.Email,
		})
	default:
		h.opts.Metrics.ObserveRegistration(metrics.ResultError)
		h.opts.Logger.Error().Err(err).Msg("registration failed")
		respondWithError(c, err)
	}
}

// Logout はセッションを破棄してログイン画面へリダイレクトします。
// 未ログインでも成功として扱います。
func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Destroy(c); err != nil {
		respondWithError(c, err)
		return
	}
	h.opts.Metrics.ObserveLogout()
	c.Redirect(http.StatusFound, LoginPath)
}

func (h *Handler) failureMessage(reason Reason) string {
	if reason == ReasonMissingCredentials {
		return MsgMissingCredentials
	}
	if h.opts.UniformFailures {
		return MsgInvalidCredentials
	}
	switch reason {
	case ReasonNoSuchUser:
		return MsgNoSuchUser
	case ReasonIncorrectPassword:
		return MsgIncorrectPassword
	default:
		return MsgInvalidCredentials
	}
}

func loginResult(reason Reason) string {
	switch reason {
	case ReasonNoSuchUser:
		return metrics.ResultNoSuchUser
	case ReasonIncorrectPassword:
		return metrics.ResultBadPassword
	default:
		return metrics.ResultFailure
	}
}
