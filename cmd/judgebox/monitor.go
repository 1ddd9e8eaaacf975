package main

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/criyle/judgebox/cmd/judgebox/config"
	"github.com/criyle/judgebox/sandbox"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
)

type stater interface {
	Status() sandbox.State
}

func initMonitorHTTPServer(conf *config.Config, s stater) initFunc {
	if conf.MonitorAddr == "" {
		return func() (func(), stopFunc) { return nil, nil }
	}
	return serveHTTP("monitoring http server", &http.Server{
		Addr:    conf.MonitorAddr,
		Handler: initMonitorHTTPMux(conf, s),
	})
}

func initMonitorHTTPMux(conf *config.Config, s stater) http.Handler {
	if conf.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(logger, "", false))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	if conf.EnableMetrics {
		initGinMetrics(r)
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	r.GET("/version", handleVersion)
	r.GET("/status", generateHandleStatus(s))
	if conf.EnableDebug {
		initDebugRoute(r)
	}
	return r
}

func initGinMetrics(r *gin.Engine) {
	p := ginprometheus.NewWithConfig(ginprometheus.Config{
		Subsystem:          "gin",
		DisableBodyReading: true,
	})
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		return c.FullPath()
	}
	r.Use(p.HandlerFunc())
}

func initDebugRoute(r *gin.Engine) {
	g := r.Group("/debug/pprof")
	g.GET("/", gin.WrapF(pprof.Index))
	g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	g.GET("/profile", gin.WrapF(pprof.Profile))
	g.GET("/symbol", gin.WrapF(pprof.Symbol))
	g.GET("/trace", gin.WrapF(pprof.Trace))
	g.GET("/:name", func(c *gin.Context) {
		pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
	})
}

func handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"buildVersion": buildVersion(),
		"goVersion":    runtime.Version(),
		"platform":     runtime.GOARCH,
		"os":           runtime.GOOS,
	})
}

func generateHandleStatus(s stater) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := s.Status()
		c.JSON(http.StatusOK, gin.H{
			"pid":            st.PID,
			"beginStartTime": st.StartTime.UnixMilli(),
			"busy":           st.Busy,
			"generation":     st.Generation,
			"loads":          st.Loads,
			"judged":         st.Judged,
			"useMemory":      st.UseMemory,
			"maxMemory":      st.MaxMemory,
		})
	}
}
