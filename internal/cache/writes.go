package cache

import (
	"sync"
	"time"
)

// WriteCoordinator 记录正在写盘的路径，保证同一路径最多一个在途写入。
// 与 DiskTier 的目录锁相互独立，写入登记不会排在长时间清扫之后。
type WriteCoordinator struct {
	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// NewWriteCoordinator 构造空的在途写入集合。
func NewWriteCoordinator() *WriteCoordinator {
	return &WriteCoordinator{inFlight: make(map[string]chan struct{})}
}

// TryBegin 尝试占有 path 的写入权；返回 true 时调用方必须在结束后调用 End。
func (w *WriteCoordinator) TryBegin(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[path]; busy {
		return false
	}
	w.inFlight[path] = make(chan struct{})
	return true
}

// End 释放 path 的写入权并唤醒所有等待者；写入失败时同样必须调用。
func (w *WriteCoordinator) End(path string) {
	w.mu.Lock()
	done, ok := w.inFlight[path]
	delete(w.inFlight, path)
	w.mu.Unlock()
	if ok {
		close(done)
	}
}

// InFlight 返回 path 当前是否有写入在进行。
func (w *WriteCoordinator) InFlight(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, busy := w.inFlight[path]
	return busy
}

// Wait 阻塞直到 path 的在途写入结束或超时；没有在途写入时立即返回 true。
func (w *WriteCoordinator) Wait(path string, timeout time.Duration) bool {
	w.mu.Lock()
	done, busy := w.inFlight[path]
	w.mu.Unlock()
	if !busy {
		return true
	}
	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Len 返回在途写入数量。
func (w *WriteCoordinator) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight)
}
