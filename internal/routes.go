package internal

import (
	"net/http"

	"memoryd/internal/controllers"
	"memoryd/internal/providers"
)

func InitRoutes(memoryController *controllers.MemoryController) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	// Literal segments win over {fanId}, so "stats" and "bulk" are reserved fan ids.
	routers.Get("/memory/stats", http.HandlerFunc(memoryController.Stats))
	routers.Post("/memory/bulk", http.HandlerFunc(memoryController.Bulk))

	routers.Get("/memory/{fanId}", http.HandlerFunc(memoryController.GetMemory))
	routers.Post("/memory/{fanId}", http.HandlerFunc(memoryController.SaveInteraction))
	routers.Delete("/memory/{fanId}", http.HandlerFunc(memoryController.ClearMemory))

	routers.Get("/memory/{fanId}/engagement", http.HandlerFunc(memoryController.GetEngagement))
	routers.Patch("/memory/{fanId}/preferences", http.HandlerFunc(memoryController.OverridePreferences))
	routers.Delete("/memory/{fanId}/preferences/{category}/pin", http.HandlerFunc(memoryController.UnpinPreference))
	routers.Patch("/memory/{fanId}/personality", http.HandlerFunc(memoryController.OverridePersonality))
	routers.Delete("/memory/{fanId}/personality/pins/{field}", http.HandlerFunc(memoryController.UnpinPersonality))
	routers.Post("/memory/{fanId}/recommendations", http.HandlerFunc(memoryController.Recommend))
	routers.Post("/memory/{fanId}/export", http.HandlerFunc(memoryController.Export))
	return routers
}
