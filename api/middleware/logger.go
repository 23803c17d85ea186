// api/middleware/logger.go
package middleware

import (
	"bytes"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"smppd/pkg/logger"
)

// maxLoggedBody 错误响应体最多记录的字节数
const maxLoggedBody = 1024

// Logger 使用全局日志器的请求日志中间件
func Logger() gin.HandlerFunc {
	return RequestLogger(logger.GetLogger().Zerolog())
}

// RequestLogger 每个请求输出一条结构化日志，4xx/5xx附带响应体
func RequestLogger(zl zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		event := zl.Info()
		switch {
		case status >= 500:
			event = zl.Error()
		case status >= 400:
			event = zl.Warn()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("query", c.Request.URL.RawQuery).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size())
		if status >= 400 {
			event = event.Bytes("body", recorder.body.Bytes())
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("HTTP请求")
	}
}

// bodyRecorder 只在出错时需要响应体，超出部分不保留
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) keep(n int) int {
	if room := maxLoggedBody - w.body.Len(); room < n {
		if room < 0 {
			return 0
		}
		return room
	}
	return n
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b[:w.keep(len(b))])
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s[:w.keep(len(s))])
	return w.ResponseWriter.WriteString(s)
}
