package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pastebin/config"
	"github.com/johnwmail/pastebin/internal/clock"
	"github.com/johnwmail/pastebin/internal/services"
	"github.com/johnwmail/pastebin/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded HTML pages for gin's renderer.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"iso": models.FormatISO,
	}).ParseFS(templateFS, "templates/*.html")
}

// WebUIHandler handles web interface
type WebUIHandler struct {
	service *services.PasteService
	config  *config.Config
	clock   *clock.Resolver
}

// NewWebUIHandler creates a new web UI handler
func NewWebUIHandler(service *services.PasteService, cfg *config.Config, clk *clock.Resolver) *WebUIHandler {
	return &WebUIHandler{
		service: service,
		config:  cfg,
		clock:   clk,
	}
}

type pageInfo struct {
	Title      string
	BaseURL    string
	Version    string
	BuildTime  string
	CommitHash string
}

func (h *WebUIHandler) page(c *gin.Context, title string) pageInfo {
	return pageInfo{
		Title:      title,
		BaseURL:    baseOrigin(c, h.config.URL),
		Version:    h.config.Version,
		BuildTime:  h.config.BuildTime,
		CommitHash: h.config.CommitHash,
	}
}

// Index handles the main page via GET /
func (h *WebUIHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Page": h.page(c, "Pastebin"),
	})
}

// View renders the HTML preview via GET /p/:id. The page shows the content
// directly but never uses up a view; only GET /pastes/:id does.
func (h *WebUIHandler) View(c *gin.Context) {
	view, err := h.service.Preview(c.Request.Context(), c.Param("id"), h.clock.Now(c.Request.Header))
	if err != nil {
		status, _ := statusFor(err)
		if status == http.StatusNotFound {
			c.HTML(http.StatusNotFound, "notfound.html", gin.H{
				"Page": h.page(c, "Paste not found"),
			})
			return
		}
		_ = c.Error(err)
		c.HTML(status, "notfound.html", gin.H{
			"Page":  h.page(c, "Something went wrong"),
			"Error": true,
		})
		return
	}

	c.HTML(http.StatusOK, "view.html", gin.H{
		"Page":  h.page(c, "Paste "+view.ID),
		"Paste": view,
	})
}
