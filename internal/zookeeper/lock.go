// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot   = "/distributed_locks" // 所有分布式锁的根节点
	nodePrefix = "lock-"
)

// ErrLockHeld 表示 TryLock 时锁已经被其他实例持有。
var ErrLockHeld = errors.New("zookeeper: lock held by another owner")

// Connect 连接 ZooKeeper 集群。servers 格式为 "host1:2181,host2:2181"。
func Connect(servers string, sessionTimeout time.Duration) (*zk.Conn, error) {
	var list []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("zookeeper: no server configured")
	}
	conn, _, err := zk.Connect(list, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("zookeeper: connect %v: %w", list, err)
	}
	return conn, nil
}

// DistributedLock 基于临时顺序节点实现的公平锁
type DistributedLock struct {
	conn     *zk.Conn
	path     string // 锁的路径，例如 /distributed_locks/recovery-sweep
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保父路径存在。
func NewDistributedLock(conn *zk.Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		exists, _, err := conn.Exists(p)
		if err != nil {
			return nil, fmt.Errorf("zookeeper: check %s: %w", p, err)
		}
		if exists {
			continue
		}
		if _, err := conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, fmt.Errorf("zookeeper: create %s: %w", p, err)
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// sequenceOf 提取顺序号。protected 节点名形如 _c_<guid>-lock-0000000012，
// 前缀各不相同，所以只能按后缀比较。
func sequenceOf(node string) string {
	if i := strings.LastIndex(node, nodePrefix); i >= 0 {
		return node[i+len(nodePrefix):]
	}
	return node
}

func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func (l *DistributedLock) createNode() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+nodePrefix, []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	return nil
}

// position 返回自己之前的节点名；为空表示自己已经是最小节点。
func (l *DistributedLock) position() (string, error) {
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		return "", fmt.Errorf("failed to get children nodes: %w", err)
	}
	sortBySequence(children)

	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
	for i, child := range children {
		if child == myNodeName {
			if i == 0 {
				return "", nil
			}
			return children[i-1], nil
		}
	}
	return "", errors.New("own lock node disappeared, session may have expired")
}

// Lock 获取锁，拿不到时阻塞等待，直到 ctx 结束。
func (l *DistributedLock) Lock(ctx context.Context) error {
	if err := l.createNode(); err != nil {
		return err
	}

	for {
		prev, err := l.position()
		if err != nil {
			_ = l.Unlock()
			return err
		}
		if prev == "" {
			return nil
		}

		// 只监听前一个节点，避免惊群
		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			_ = l.Unlock()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
		case <-ctx.Done():
			_ = l.Unlock()
			return ctx.Err()
		}
	}
}

// TryLock 只尝试一次：自己不是最小节点就立即放弃并返回 ErrLockHeld。
func (l *DistributedLock) TryLock() error {
	if err := l.createNode(); err != nil {
		return err
	}
	prev, err := l.position()
	if err != nil {
		_ = l.Unlock()
		return err
	}
	if prev != "" {
		_ = l.Unlock()
		return ErrLockHeld
	}
	return nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
