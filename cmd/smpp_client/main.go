// cmd/smpp_client/main.go  测试用ESME客户端
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"smppd/internal/client"
	"smppd/internal/protocol"
	"smppd/pkg/logger"
)

var bindCommands = map[string]uint32{
	"tx":  protocol.BIND_TRANSMITTER,
	"rx":  protocol.BIND_RECEIVER,
	"trx": protocol.BIND_TRANSCEIVER,
}

func main() {
	address := flag.String("address", "localhost:2775", "服务器地址")
	systemID := flag.String("system-id", "test", "系统ID")
	password := flag.String("password", "test", "密码")
	mode := flag.String("mode", "trx", "绑定方式: tx, rx, trx")
	count := flag.Int("count", 1, "提交短信数量")
	source := flag.String("source", "10086", "源地址")
	dest := flag.String("dest", "13800000000", "目标地址")
	text := flag.String("text", "hello", "短信内容")
	enquire := flag.Duration("enquire", 60*time.Second, "心跳间隔")
	flag.Parse()

	logger.Init("smpp_client")

	bindCmd, ok := bindCommands[*mode]
	if !ok {
		logger.Fatal(fmt.Sprintf("未知的绑定方式: %s", *mode))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(fmt.Sprintf("正在连接到 %s...", *address))
	esme, err := client.Dial(ctx, client.Config{
		Address:         *address,
		SystemID:        *systemID,
		Password:        *password,
		SystemType:      "smpp_test",
		BindCommand:     bindCmd,
		EnquireInterval: *enquire,
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("绑定失败: %v", err))
	}
	logger.Info(fmt.Sprintf("绑定成功，服务端system_id: %s", esme.ServerSystemID()))

	if bindCmd != protocol.BIND_RECEIVER {
		for i := 0; i < *count; i++ {
			id, status, err := esme.Submit(ctx, &protocol.SubmitSM{
				SourceAddr:         *source,
				DestinationAddr:    *dest,
				RegisteredDelivery: 1,
				ShortMessage:       []byte(*text),
			})
			if err != nil {
				logger.Error(fmt.Sprintf("提交短信失败: %v", err))
				break
			}
			logger.Info(fmt.Sprintf("提交结果 #%d status=%s message_id=%s", i+1, protocol.StatusName(status), id))
		}
	}

	// 发送方提交完成后直接解绑，接收方等待下发直到收到信号
	if bindCmd != protocol.BIND_TRANSMITTER {
	loop:
		for {
			select {
			case sm := <-esme.Deliveries():
				logger.Info(fmt.Sprintf("收到短信: 来源=%s, 目标=%s, 内容=%s", sm.SourceAddr, sm.DestinationAddr, sm.Content()))
			case <-esme.Done():
				logger.Info("连接已关闭")
				return
			case <-ctx.Done():
				break loop
			}
		}
	}

	logger.Info("正在解绑...")
	unbindCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := esme.Unbind(unbindCtx); err != nil {
		logger.Error(fmt.Sprintf("解绑失败: %v", err))
	}
	logger.Info(fmt.Sprintf("客户端已关闭，统计: %v", esme.GetStats()))
}
