package idgen

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 流水号、兑换单号需要全局唯一且趋势递增，便于按号检索和对账。
// 结构：41位毫秒时间戳 - 10位节点ID - 12位序列号
//
// ============================================================================

// 起始时间戳（2024-01-01 00:00:00 UTC）
const epoch = int64(1704067200000)

var (
	node *snowflake.Node
	once sync.Once
)

// Init 初始化默认节点，nodeID 范围 0-1023
func Init(nodeID int64) {
	once.Do(func() {
		snowflake.Epoch = epoch
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			log.Fatalf("初始化 ID 生成器失败: %v", err)
		}
		node = n
	})
}

// NextID 生成下一个ID
func NextID() int64 {
	Init(1)
	return node.Generate().Int64()
}

// 前缀 + 日期 + 完整雪花ID，不截断，避免同一秒内取模碰撞
func generate(prefix string) string {
	return fmt.Sprintf("%s%s%d", prefix, time.Now().Format("20060102"), NextID())
}

// GenerateTransactionNo 生成积分流水号，例如 PTX20240115 + 雪花ID
func GenerateTransactionNo() string {
	return generate("PTX")
}

// GenerateRedemptionNo 生成兑换单号
func GenerateRedemptionNo() string {
	return generate("RDM")
}
