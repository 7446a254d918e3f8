package api

import (
	"net/http"
	"strings"
)

// Router gerencia as rotas da API
type Router struct {
	handler     *Handler
	mux         *http.ServeMux
	basePath    string
	middlewares []Middleware
}

// NewRouter cria um router para a API sob basePath (ex.: "/api")
func NewRouter(handler *Handler, basePath string) *Router {
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")

	return &Router{
		handler:  handler,
		mux:      http.NewServeMux(),
		basePath: basePath,
		middlewares: []Middleware{
			LoggingMiddleware,
			RecoveryMiddleware,
			CorsMiddleware,
		},
	}
}

// Setup configura todas as rotas
func (r *Router) Setup() {
	r.mux.HandleFunc(r.path("/status"), r.handler.GetStatus)
	r.mux.HandleFunc(r.path("/reading"), r.handler.GetReading)
	r.mux.HandleFunc(r.path("/readings"), r.handler.Readings)
	r.mux.HandleFunc(r.path("/cycle"), r.handler.GetCycle)
	r.mux.HandleFunc(r.path("/power-factor"), r.handler.PowerFactor)
	r.mux.HandleFunc(r.path("/command"), r.handler.SendCommand)
	r.mux.HandleFunc(r.path("/connect"), r.handler.Connect)
	r.mux.HandleFunc(r.path("/disconnect"), r.handler.Disconnect)
	r.mux.HandleFunc(r.path("/discover"), r.handler.Discover)

	log.Infof("API configurada com base path: %s", r.basePath)
}

// Handler retorna o handler HTTP final com todos os middlewares aplicados
func (r *Router) Handler() http.Handler {
	if len(r.middlewares) == 0 {
		return r.mux
	}
	return Chain(r.middlewares...)(r.mux)
}

// AddMiddleware adiciona um novo middleware (aplicado por dentro dos padrões)
func (r *Router) AddMiddleware(middleware Middleware) {
	r.middlewares = append(r.middlewares, middleware)
}

func (r *Router) path(route string) string {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return r.basePath + route
}
