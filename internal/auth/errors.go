package auth

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/member-gate/internal/password"
	"github.com/yourusername/member-gate/internal/user"
)

// ErrSessionUnavailable はセッションストアに到達できないことを表します。
// 未ログインとして扱ってはいけません。
var ErrSessionUnavailable = errors.New("session store unavailable")

// ValidationError は登録入力の不備をフィールドごとにまとめたものです。
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid registration: " + strings.Join(parts, ", ")
}

// respondWithError はストア障害などの致命的なエラーを HTTP ステータスに変換します。
func respondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, user.ErrUnavailable), errors.Is(err, ErrSessionUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"code":    "STORE_UNAVAILABLE",
			"message": "Service temporarily unavailable. Please try again later.",
		})
	case errors.Is(err, password.ErrHashFailed):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    "HASH_FAILED",
			"message": "Could not process the password.",
		})
	case errors.Is(err, context.Canceled):
		c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "The request was canceled.",
		})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "Internal server error.",
		})
	}
}
