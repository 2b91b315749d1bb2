package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/argproxy/internal/application/dto"
	"github.com/turtacn/argproxy/internal/application/service"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

// LinkHandler answers proxy requests with a redirect to a usable signed link.
// LinkHandler 将代理请求重定向到可用的签名链接。
type LinkHandler struct {
	linkService service.LinkAppService
	log         logger.Logger
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(linkService service.LinkAppService, log logger.Logger) *LinkHandler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &LinkHandler{
		linkService: linkService,
		log:         log.WithComponent("link_handler"),
	}
}

// Redirect godoc
// @Summary      Redirect to a fresh attachment link
// @Description  Accepts /attachments/{channel}/{attachment}/{file}?ex&is&hm or a full link in the path.
// @Tags         proxy
// @Success      302
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /{target} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Header("Allow", "GET, HEAD")
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, &errors.ErrorResponse{
			Error:            "method_not_allowed",
			ErrorDescription: "Only GET and HEAD are supported.",
		})
		return
	}

	resp, err := h.linkService.Resolve(c.Request.Context(), &dto.ResolveLinkRequest{
		URL:       c.Request.URL,
		RequestID: requestID(c),
	})
	if err != nil {
		sendError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, resp.Location)
}
