// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 封装 go-redis 的 UniversalClient。
// 传入单个地址时使用单机模式，多个地址时自动切换为集群模式。
type Client struct {
	rdb goredis.UniversalClient
}

// NewClient 根据逗号分隔的地址列表创建客户端，并做一次连通性探测。
func NewClient(addrs string) (*Client, error) {
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return &Client{rdb: rdb}, nil
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级操作的调用方使用。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.rdb
}

// SetNX 尝试占据一个带过期时间的幂等标记。返回 true 表示首次占据成功。
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Del 删除一个标记（补偿场景：处理失败后释放幂等位，允许重试）。
func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
