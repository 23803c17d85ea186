// internal/performance/metrics.go
package performance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"smppd/internal/protocol"
	"smppd/pkg/logger"
)

// MetricsRegistry 全局指标注册表
var MetricsRegistry = metrics.NewRegistry()

// Metrics SMPP服务指标收集器
type Metrics struct {
	registry metrics.Registry

	// PDU收发总数
	PDUReceived metrics.Counter
	PDUSent     metrics.Counter

	// PDU接收速率
	PDURate metrics.Meter

	// 单个PDU分发耗时
	DispatchLatency metrics.Timer

	// 错误统计
	ErrorCount  metrics.Counter
	ErrorRate   metrics.Meter
	FrameErrors metrics.Counter

	// 绑定与提交
	BindSuccess    metrics.Counter
	BindFailures   metrics.Counter
	SubmitAccepted metrics.Counter
	SubmitRejected metrics.Counter

	// 活跃连接数
	ActiveConnections metrics.Gauge

	// 启动时间
	StartTime time.Time
}

// 全局指标实例
var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// GetMetrics 获取全局指标实例
func GetMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewMetrics(MetricsRegistry)
	})
	return globalMetrics
}

// NewMetrics 在registry中创建指标，registry为nil时新建
func NewMetrics(registry metrics.Registry) *Metrics {
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	return &Metrics{
		registry:          registry,
		PDUReceived:       metrics.GetOrRegisterCounter("pdu.received", registry),
		PDUSent:           metrics.GetOrRegisterCounter("pdu.sent", registry),
		PDURate:           metrics.GetOrRegisterMeter("pdu.rate", registry),
		DispatchLatency:   metrics.GetOrRegisterTimer("dispatch.latency", registry),
		ErrorCount:        metrics.GetOrRegisterCounter("errors.count", registry),
		ErrorRate:         metrics.GetOrRegisterMeter("errors.rate", registry),
		FrameErrors:       metrics.GetOrRegisterCounter("errors.frame", registry),
		BindSuccess:       metrics.GetOrRegisterCounter("bind.success", registry),
		BindFailures:      metrics.GetOrRegisterCounter("bind.failures", registry),
		SubmitAccepted:    metrics.GetOrRegisterCounter("submit.accepted", registry),
		SubmitRejected:    metrics.GetOrRegisterCounter("submit.rejected", registry),
		ActiveConnections: metrics.GetOrRegisterGauge("connections.active", registry),
		StartTime:         time.Now(),
	}
}

// RecordReceived 记录收到的PDU，按命令名分别计数
func (m *Metrics) RecordReceived(commandID uint32) {
	m.PDUReceived.Inc(1)
	m.PDURate.Mark(1)
	metrics.GetOrRegisterCounter("pdu.in."+commandKey(commandID), m.registry).Inc(1)
}

// RecordSent 记录发出的PDU
func (m *Metrics) RecordSent(commandID uint32) {
	m.PDUSent.Inc(1)
	metrics.GetOrRegisterCounter("pdu.out."+commandKey(commandID), m.registry).Inc(1)
}

// RecordDispatch 记录一次分发耗时
func (m *Metrics) RecordDispatch(start time.Time) {
	m.DispatchLatency.UpdateSince(start)
}

// RecordError 记录错误
func (m *Metrics) RecordError() {
	m.ErrorCount.Inc(1)
	m.ErrorRate.Mark(1)
}

// RecordFrameError 记录帧错误
func (m *Metrics) RecordFrameError() {
	m.FrameErrors.Inc(1)
	m.RecordError()
}

// ConnectionOpened 活跃连接数加一
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Update(m.ActiveConnections.Value() + 1)
}

// ConnectionClosed 活跃连接数减一
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Update(m.ActiveConnections.Value() - 1)
}

// CommandCount 返回某命令的收到次数
func (m *Metrics) CommandCount(commandID uint32) int64 {
	return metrics.GetOrRegisterCounter("pdu.in."+commandKey(commandID), m.registry).Count()
}

// Snapshot 返回可JSON序列化的指标快照
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"uptime":             time.Since(m.StartTime).Truncate(time.Second).String(),
		"pdu_received":       m.PDUReceived.Count(),
		"pdu_sent":           m.PDUSent.Count(),
		"pdu_rate_1m":        m.PDURate.Rate1(),
		"dispatch_mean_ms":   m.DispatchLatency.Mean() / float64(time.Millisecond),
		"dispatch_p99_ms":    m.DispatchLatency.Percentile(0.99) / float64(time.Millisecond),
		"errors":             m.ErrorCount.Count(),
		"frame_errors":       m.FrameErrors.Count(),
		"bind_success":       m.BindSuccess.Count(),
		"bind_failures":      m.BindFailures.Count(),
		"submit_accepted":    m.SubmitAccepted.Count(),
		"submit_rejected":    m.SubmitRejected.Count(),
		"active_connections": m.ActiveConnections.Value(),
	}
}

// StartMetricsReporter 启动指标报告器，ctx取消时退出
func (m *Metrics) StartMetricsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.LogMetrics()
			}
		}
	}()
}

// LogMetrics 记录指标日志
func (m *Metrics) LogMetrics() {
	uptime := time.Since(m.StartTime).Truncate(time.Second)

	logger.Info(fmt.Sprintf("--- 性能指标 (运行时间: %s) ---", uptime))
	logger.Info(fmt.Sprintf("PDU收/发: %d/%d, 接收速率: %.2f/s",
		m.PDUReceived.Count(), m.PDUSent.Count(), m.PDURate.Rate1()))
	logger.Info(fmt.Sprintf("平均分发延迟: %.2fms, 延迟99分位: %.2fms",
		m.DispatchLatency.Mean()/float64(time.Millisecond),
		m.DispatchLatency.Percentile(0.99)/float64(time.Millisecond)))
	logger.Info(fmt.Sprintf("错误总数: %d, 帧错误: %d, 绑定失败: %d",
		m.ErrorCount.Count(), m.FrameErrors.Count(), m.BindFailures.Count()))
	logger.Info(fmt.Sprintf("活跃连接数: %d", m.ActiveConnections.Value()))
}

func commandKey(commandID uint32) string {
	if protocol.IsKnownCommand(commandID) {
		return protocol.CommandName(commandID)
	}
	return "unknown"
}
