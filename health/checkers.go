package health

import (
	"context"
	"fmt"

	"github.com/glimte/aopdemo/aop"
)

// ProxyChecker reports the operations and capabilities of a woven target
type ProxyChecker struct {
	proxy    *aop.Proxy
	bindings func() []aop.Binding
}

// NewProxyChecker creates a checker for proxy; bindings lists the active advice
func NewProxyChecker(proxy *aop.Proxy, bindings func() []aop.Binding) *ProxyChecker {
	return &ProxyChecker{proxy: proxy, bindings: bindings}
}

func (c *ProxyChecker) Name() string {
	return "aspects"
}

func (c *ProxyChecker) Check(ctx context.Context) CheckResult {
	if c.proxy == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "no woven target"}
	}

	signatures := c.proxy.Signatures()
	bindings := c.bindings()

	result := CheckResult{
		Status: StatusHealthy,
		Details: map[string]any{
			"target":     c.proxy.Target().TypeName(),
			"operations": len(signatures),
			"bindings":   len(bindings),
		},
	}
	if len(bindings) == 0 {
		result.Status = StatusDegraded
		result.Message = "no advice bound"
	}
	return result
}

// Connection reports whether a broker connection is up
type Connection interface {
	IsConnected() bool
}

// AMQPChecker checks the broker connection
type AMQPChecker struct {
	conn Connection
	url  string
}

// NewAMQPChecker creates a checker for conn; url is reported sanitized
func NewAMQPChecker(conn Connection, url string) *AMQPChecker {
	return &AMQPChecker{conn: conn, url: url}
}

func (c *AMQPChecker) Name() string {
	return "amqp"
}

func (c *AMQPChecker) Check(ctx context.Context) CheckResult {
	if !c.conn.IsConnected() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("not connected to %s", c.url),
		}
	}
	return CheckResult{Status: StatusHealthy, Details: map[string]any{"url": c.url}}
}
