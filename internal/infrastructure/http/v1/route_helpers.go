package v1

import (
	"github.com/gin-gonic/gin"
)

// RouteRegistrar is implemented by every handler that owns a route group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Mount registers each handler on the group at path.
// Several handlers may share one path, e.g. stock reads and inventory writes under /stock.
func Mount(rg *gin.RouterGroup, path string, handlers ...RouteRegistrar) {
	group := rg.Group(path)
	for _, h := range handlers {
		h.RegisterRoutes(group)
	}
}
