// cmd/benchmark/main.go  submit_sm 压测工具
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rcrowley/go-metrics"
	"golang.org/x/time/rate"

	"smppd/internal/client"
	"smppd/internal/protocol"
	"smppd/pkg/logger"
)

// BenchmarkConfig 测试配置
type BenchmarkConfig struct {
	Address  string
	SystemID string
	Password string

	ConcurrentClients int
	MessageRate       int
	TestDuration      time.Duration
	MessageSize       int

	ReportInterval time.Duration
}

// BenchmarkMetrics 测试指标
type BenchmarkMetrics struct {
	SubmitCounter   metrics.Counter
	SubmitRate      metrics.Meter
	ThrottledCount  metrics.Counter
	ResponseLatency metrics.Timer
	ErrorCounter    metrics.Counter
	ActiveClients   metrics.Counter
}

// NewBenchmarkMetrics 创建测试指标
func NewBenchmarkMetrics() *BenchmarkMetrics {
	return &BenchmarkMetrics{
		SubmitCounter:   metrics.NewCounter(),
		SubmitRate:      metrics.NewMeter(),
		ThrottledCount:  metrics.NewCounter(),
		ResponseLatency: metrics.NewTimer(),
		ErrorCounter:    metrics.NewCounter(),
		ActiveClients:   metrics.NewCounter(),
	}
}

func main() {
	cfg := parseFlags()
	logger.Init("smppd_benchmark")

	m := NewBenchmarkMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.TestDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TestDuration)
		defer cancel()
	}

	go reportMetrics(ctx, m, cfg.ReportInterval)

	logger.Info(fmt.Sprintf("开始性能测试，并发=%d, 速率=%d msg/s, 持续=%s",
		cfg.ConcurrentClients, cfg.MessageRate, cfg.TestDuration))

	// 所有客户端共享总速率
	limiter := rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.ConcurrentClients)
	content := []byte(strings.Repeat("ABCDEFGHIJKLMNOPQRSTUVWXYZ", cfg.MessageSize/26+1)[:cfg.MessageSize])

	var wg sync.WaitGroup
	for i := 0; i < cfg.ConcurrentClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runClient(ctx, cfg, m, limiter, content, id)
		}(i)
	}

	wg.Wait()
	printFinalResults(m)
	logger.Info("测试已完成")
}

func parseFlags() *BenchmarkConfig {
	cfg := &BenchmarkConfig{}

	flag.StringVar(&cfg.Address, "addr", "localhost:2775", "服务器地址")
	flag.StringVar(&cfg.SystemID, "system", "test", "系统ID")
	flag.StringVar(&cfg.Password, "password", "test", "密码")
	flag.IntVar(&cfg.ConcurrentClients, "clients", 10, "并发客户端数")
	flag.IntVar(&cfg.MessageRate, "rate", 100, "每秒消息数")
	flag.DurationVar(&cfg.TestDuration, "duration", 60*time.Second, "测试持续时间")
	flag.IntVar(&cfg.MessageSize, "size", 140, "消息大小(字节)")
	flag.DurationVar(&cfg.ReportInterval, "interval", 5*time.Second, "报告间隔")
	flag.Parse()

	if cfg.ConcurrentClients <= 0 {
		cfg.ConcurrentClients = 1
	}
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = 1
	}
	if cfg.MessageSize < 0 || cfg.MessageSize > 254 {
		cfg.MessageSize = 140
	}
	return cfg
}

// runClient 绑定为发送方并按共享速率提交短信
func runClient(ctx context.Context, cfg *BenchmarkConfig, m *BenchmarkMetrics, limiter *rate.Limiter, content []byte, clientID int) {
	esme, err := client.Dial(ctx, client.Config{
		Address:     cfg.Address,
		SystemID:    cfg.SystemID,
		Password:    cfg.Password,
		BindCommand: protocol.BIND_TRANSMITTER,
	})
	if err != nil {
		logger.Error(fmt.Sprintf("客户端%d绑定失败: %v", clientID, err))
		m.ErrorCounter.Inc(1)
		return
	}
	m.ActiveClients.Inc(1)
	defer func() {
		m.ActiveClients.Dec(1)
		unbindCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		esme.Unbind(unbindCtx)
	}()

	sm := &protocol.SubmitSM{
		SourceAddr:      fmt.Sprintf("%d", 10000+clientID),
		DestinationAddr: "13800000000",
		ShortMessage:    content,
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		start := time.Now()
		_, status, err := esme.Submit(ctx, sm)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.ErrorCounter.Inc(1)
			logger.Error(fmt.Sprintf("客户端%d提交失败: %v", clientID, err))
			select {
			case <-esme.Done():
				return
			default:
			}
			continue
		}
		m.ResponseLatency.UpdateSince(start)

		switch status {
		case protocol.ESME_ROK:
			m.SubmitCounter.Inc(1)
			m.SubmitRate.Mark(1)
		case protocol.ESME_RTHROTTLED:
			m.ThrottledCount.Inc(1)
		default:
			m.ErrorCounter.Inc(1)
		}
	}
}

func reportMetrics(ctx context.Context, m *BenchmarkMetrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printMetrics(m)
		}
	}
}

func printMetrics(m *BenchmarkMetrics) {
	logger.Info("=== 性能测试指标 ===")
	logger.Info(fmt.Sprintf("客户端: %d, 提交成功: %d, 速率: %.2f msg/s, 限流: %d, 错误: %d",
		m.ActiveClients.Count(), m.SubmitCounter.Count(), m.SubmitRate.Rate1(),
		m.ThrottledCount.Count(), m.ErrorCounter.Count()))
	logger.Info(fmt.Sprintf("平均延迟: %.2f ms, P95延迟: %.2f ms, P99延迟: %.2f ms",
		m.ResponseLatency.Mean()/float64(time.Millisecond),
		m.ResponseLatency.Percentile(0.95)/float64(time.Millisecond),
		m.ResponseLatency.Percentile(0.99)/float64(time.Millisecond)))
}

func printFinalResults(m *BenchmarkMetrics) {
	logger.Info("=== 测试最终结果 ===")

	total := m.SubmitCounter.Count() + m.ThrottledCount.Count() + m.ErrorCounter.Count()
	logger.Info(fmt.Sprintf("总请求数: %d, 成功: %d, 限流: %d, 错误: %d",
		total, m.SubmitCounter.Count(), m.ThrottledCount.Count(), m.ErrorCounter.Count()))
	logger.Info(fmt.Sprintf("平均速率: %.2f msg/s", m.SubmitRate.RateMean()))
	logger.Info(fmt.Sprintf("最小延迟: %.2f ms, 最大延迟: %.2f ms",
		float64(m.ResponseLatency.Min())/float64(time.Millisecond),
		float64(m.ResponseLatency.Max())/float64(time.Millisecond)))
	logger.Info(fmt.Sprintf("P50延迟: %.2f ms, P90延迟: %.2f ms, P99延迟: %.2f ms",
		m.ResponseLatency.Percentile(0.5)/float64(time.Millisecond),
		m.ResponseLatency.Percentile(0.9)/float64(time.Millisecond),
		m.ResponseLatency.Percentile(0.99)/float64(time.Millisecond)))

	if total > 0 {
		logger.Info(fmt.Sprintf("错误率: %.2f%%", float64(m.ErrorCounter.Count())/float64(total)*100))
	}
}
