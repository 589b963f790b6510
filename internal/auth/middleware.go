package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// リダイレクト先
const (
	HomePath  = "/"
	LoginPath = "/login"
)

// RequireAuthenticated は未ログインのリクエストを /login へリダイレクトするミドルウェアです。
// ログイン済みの場合は ContextPrincipalKey に Principal を設定して次へ進みます。
func (m *SessionManager) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := m.Current(c)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if p == nil {
			c.Redirect(http.StatusFound, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAnonymous はログイン済みのリクエストを / へリダイレクトするミドルウェアです。
func (m *SessionManager) RequireAnonymous() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := m.Current(c)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if p != nil {
			c.Redirect(http.StatusFound, HomePath)
			c.Abort()
			return
		}
		c.Next()
	}
}
