// Package web は HTML テンプレート・静的ファイル・フォーム向けの補助ミドルウェアを提供します。
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates は埋め込みテンプレートを読み込みます。ページ名は "<page>.tmpl" です。
func Templates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// Install はテンプレートと /static をエンジンに登録します。
func Install(engine *gin.Engine) error {
	tmpl, err := Templates()
	if err != nil {
		return err
	}
	engine.SetHTMLTemplate(tmpl)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("open static assets: %w", err)
	}
	engine.StaticFS("/static", http.FS(static))
	return nil
}

// HTMLRenderer は gin の HTML レンダラーでページを描画します。
type HTMLRenderer struct{}

// Render は page に対応するテンプレートを描画します。
func (HTMLRenderer) Render(c *gin.Context, status int, page string, data gin.H) {
	c.HTML(status, page+".tmpl", data)
}

// MethodOverride は POST リクエストの ?_method= または X-HTTP-Method-Override ヘッダーで
// メソッドを置き換えます。HTML フォームから DELETE などを送るためのものです。
// gin はミドルウェアより先にルートを決めるため、エンジンの外側で包みます。
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			method := r.URL.Query().Get("_method")
			if method == "" {
				method = r.Header.Get("X-HTTP-Method-Override")
			}
			switch strings.ToUpper(method) {
			case http.MethodDelete, http.MethodPut, http.MethodPatch:
				r.Method = strings.ToUpper(method)
			}
		}
		next.ServeHTTP(w, r)
	})
}
