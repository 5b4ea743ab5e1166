// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openharvest/oaipmh/server"
)

// oaiHandler answers the /oai endpoint from a protocol server.
type oaiHandler struct {
	srv    *server.Server
	logger *slog.Logger
}

func (h *oaiHandler) HandleGet(ctx *gin.Context) {
	h.answer(ctx, ctx.Request.URL.Query())
}

func (h *oaiHandler) HandlePost(ctx *gin.Context) {
	if err := ctx.Request.ParseForm(); err != nil {
		ctx.AbortWithStatus(http.StatusBadRequest)
		return
	}
	h.answer(ctx, ctx.Request.PostForm)
}

// answer runs one protocol request and writes the XML body. Protocol errors
// still produce a 200 with an error envelope; only backend failures abort
// with a 500.
func (h *oaiHandler) answer(ctx *gin.Context, args url.Values) {
	verb := verbLabel(args.Get("verb"))
	start := time.Now()
	body, perrs, err := h.srv.Handle(ctx.Request.Context(), args)
	elapsed := time.Since(start)

	metricRequestsTotal.WithLabelValues(verb).Inc()
	metricRequestDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
	for _, perr := range perrs {
		metricProtocolErrorsTotal.WithLabelValues(string(perr.Code)).Inc()
	}

	if err != nil {
		h.logger.Error("request failed",
			slog.String("verb", args.Get("verb")), slog.String("error", err.Error()))
		ctx.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	h.logger.Debug("request served",
		slog.String("verb", args.Get("verb")),
		slog.Int("errors", len(perrs)),
		slog.Duration("elapsed", elapsed))
	ctx.Data(http.StatusOK, "text/xml; charset=utf-8", body)
}

// newRouter wires the OAI endpoint, Prometheus metrics and the health
// check.
func newRouter(srv *server.Server, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &oaiHandler{srv: srv, logger: logger}
	router.GET("/oai", h.HandleGet)
	router.POST("/oai", h.HandlePost)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "OK\n")
	})
	return router
}
