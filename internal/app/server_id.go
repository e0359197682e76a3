package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateServerID 生成网关实例ID
// 优先使用环境变量 DSG_SERVER_ID，否则生成 dsg-{hostname}-{uuid前8位}
func GenerateServerID() string {
	if serverID := os.Getenv("DSG_SERVER_ID"); serverID != "" {
		return serverID
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return fmt.Sprintf("dsg-%s-%s", hostname, uuid.New().String()[:8])
}
