// Package scan 在图片落盘前调用 ClamAV 做病毒扫描。
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// ErrInfected 表示 clamd 在文件中发现了恶意内容。
var ErrInfected = errors.New("malicious file detected")

// ClamdScanner 通过 clamd 的 INSTREAM 命令扫描数据流。
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewClamdScanner 使用 clamd 地址创建扫描器，例如 tcp://clamav:3310。
func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// Scan 读取整个 reader 并返回扫描结论。
func (s *ClamdScanner) Scan(ctx context.Context, r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}

	var scanErr error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-results:
			if !ok {
				return scanErr
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				scanErr = fmt.Errorf("%w: %s", ErrInfected, result.Description)
			default:
				if scanErr == nil {
					scanErr = fmt.Errorf("clamd returned %s: %s", result.Status, result.Raw)
				}
			}
		}
	}
}
