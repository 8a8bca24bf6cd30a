package subscription

import (
	"sync"
)

// Manager 管理所有订阅连接
type Manager struct {
	connections map[int64]*Conn
	userConns   map[int64]map[int64]*Conn // userID -> connID -> Conn
	mu          sync.RWMutex
}

// NewManager 创建连接管理器
func NewManager() *Manager {
	return &Manager{
		connections: make(map[int64]*Conn),
		userConns:   make(map[int64]map[int64]*Conn),
	}
}

// Add 注册连接
func (m *Manager) Add(conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// BindUser 认证完成后绑定用户
func (m *Manager) BindUser(connID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}
	if _, ok := m.userConns[userID]; !ok {
		m.userConns[userID] = make(map[int64]*Conn)
	}
	m.userConns[userID][connID] = conn
}

// Remove 注销连接
func (m *Manager) Remove(connID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}
	delete(m.connections, connID)

	if userID := conn.UserID(); userID > 0 {
		if userConns, ok := m.userConns[userID]; ok {
			delete(userConns, connID)
			if len(userConns) == 0 {
				delete(m.userConns, userID)
			}
		}
	}
}

// GetByUserID 用户的所有连接
func (m *Manager) GetByUserID(userID int64) []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userConns, ok := m.userConns[userID]
	if !ok {
		return nil
	}
	conns := make([]*Conn, 0, len(userConns))
	for _, conn := range userConns {
		conns = append(conns, conn)
	}
	return conns
}

// Count 连接数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CloseAll 关闭所有连接（停机时调用）
func (m *Manager) CloseAll() {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}
