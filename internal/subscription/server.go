package subscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"sudooom.im.chat/internal/eventbus"
	"sudooom.im.chat/internal/model"
	appErrors "sudooom.im.chat/pkg/errors"
	"sudooom.im.chat/pkg/snowflake"
)

const initTimeout = 10 * time.Second

// Authenticator 解析 Token 得到当前用户，每个事件投递前都会重新校验
type Authenticator interface {
	ResolveUser(ctx context.Context, token string) (*model.User, error)
}

// Server websocket 订阅服务
type Server struct {
	auth      Authenticator
	groups    GroupLister
	bus       eventbus.Bus
	manager   *Manager
	node      *snowflake.Node
	keepAlive time.Duration
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewServer 创建订阅服务，allowedOrigins 与 HTTP 跨域配置一致，"*" 表示放行所有来源
func NewServer(auth Authenticator, groups GroupLister, bus eventbus.Bus, node *snowflake.Node, keepAlive time.Duration, allowedOrigins []string) *Server {
	return &Server{
		auth:      auth,
		groups:    groups,
		bus:       bus,
		manager:   NewManager(),
		node:      node,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: slog.Default(),
	}
}

// checkOrigin 浏览器发起的握手只接受同源或白名单中的 Origin，没有 Origin 的非浏览器客户端放行
func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowAll := slices.Contains(allowedOrigins, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll || slices.Contains(allowedOrigins, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Manager 连接管理器
func (s *Server) Manager() *Manager {
	return s.manager
}

// Shutdown 关闭所有订阅连接
func (s *Server) Shutdown() {
	s.manager.CloseAll()
}

// ServeHTTP 升级为 websocket 并处理订阅协议
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写了错误响应
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(s.node.Generate().Int64(), ws, s.keepAlive, s.logger)
	s.manager.Add(conn)
	defer func() {
		s.manager.Remove(conn.ID())
		conn.Close()
	}()

	s.readLoop(conn)
}

func (s *Server) readLoop(conn *Conn) {
	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(initTimeout))

	for {
		var msg OperationMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				conn.logger.Debug("Connection read error", "error", err)
			}
			return
		}

		switch msg.Type {
		case TypeConnectionInit:
			if !s.handleInit(conn, msg) {
				return
			}
			_ = ws.SetReadDeadline(time.Time{})
		case TypeStart:
			if conn.UserID() == 0 {
				s.rejectConnection(conn, appErrors.ErrUnauthenticated)
				return
			}
			s.handleStart(conn, msg)
		case TypeStop:
			if conn.removeStream(msg.ID) {
				_ = conn.Send(newMessage(msg.ID, TypeComplete, nil))
			}
		case TypeConnectionTerminate:
			return
		default:
			_ = conn.Send(newMessage(msg.ID, TypeError, errorPayload(appErrors.ErrInvalidParams.WithMessage("未知的消息类型"))))
		}
	}
}

// handleInit 认证连接，失败时发送 connection_error 并返回 false
func (s *Server) handleInit(conn *Conn, msg OperationMessage) bool {
	if conn.UserID() != 0 {
		return true
	}

	var payload InitPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.rejectConnection(conn, appErrors.ErrInvalidParams.Wrap(err))
			return false
		}
	}
	if payload.AuthToken == "" {
		s.rejectConnection(conn, appErrors.ErrUnauthenticated)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	user, err := s.auth.ResolveUser(ctx, payload.AuthToken)
	if err != nil {
		s.rejectConnection(conn, err)
		return false
	}

	conn.bind(user.ID, payload.AuthToken)
	s.manager.BindUser(conn.ID(), user.ID)
	conn.logger.Info("Subscription connection authenticated", "user_id", user.ID)

	_ = conn.Send(newMessage("", TypeConnectionAck, nil))
	_ = conn.Send(OperationMessage{Type: TypeKeepAlive})
	return true
}

func (s *Server) rejectConnection(conn *Conn, err error) {
	conn.logger.Info("Subscription connection rejected", "error", err)
	_ = conn.Send(newMessage("", TypeConnectionError, errorPayload(err)))
	// writeLoop 发出 connection_error 后关闭连接
	<-conn.Done()
}

func (s *Server) handleStart(conn *Conn, msg OperationMessage) {
	if msg.ID == "" {
		_ = conn.Send(newMessage("", TypeError, errorPayload(appErrors.ErrInvalidParams.WithMessage("缺少订阅 id"))))
		return
	}

	var payload StartPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.failStream(conn, msg.ID, appErrors.ErrInvalidParams.Wrap(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	if !conn.addStream(msg.ID, cancel) {
		cancel()
		s.failStream(conn, msg.ID, appErrors.ErrInvalidParams.WithMessage("订阅 id 已存在"))
		return
	}

	user, err := s.auth.ResolveUser(ctx, conn.token)
	if err != nil {
		conn.removeStream(msg.ID)
		s.failStream(conn, msg.ID, err)
		return
	}

	match, topic, err := s.prepare(ctx, payload, user)
	if err != nil {
		conn.removeStream(msg.ID)
		s.failStream(conn, msg.ID, err)
		return
	}

	sub := s.bus.Subscribe(topic)
	conn.logger.Debug("Subscription stream started", "stream_id", msg.ID, "operation", payload.OperationName)
	go s.pump(ctx, conn, msg.ID, payload.OperationName, sub, match)
}

// prepare 解析并校验订阅参数，返回事件过滤函数和主题
func (s *Server) prepare(ctx context.Context, payload StartPayload, user *model.User) (func(eventbus.Event, int64) (any, bool), eventbus.Topic, error) {
	switch payload.OperationName {
	case OperationMessageAdded:
		var args MessageAddedArgs
		if err := decodeVariables(payload.Variables, &args); err != nil {
			return nil, "", err
		}
		if err := PrepareMessageAdded(ctx, s.groups, &args, user); err != nil {
			return nil, "", err
		}
		return func(ev eventbus.Event, subscriberID int64) (any, bool) {
			return ev.Message, MessageAdded(ev, args, subscriberID)
		}, eventbus.TopicMessageCreated, nil

	case OperationGroupAdded:
		var args GroupAddedArgs
		if err := decodeVariables(payload.Variables, &args); err != nil {
			return nil, "", err
		}
		if err := PrepareGroupAdded(&args, user); err != nil {
			return nil, "", err
		}
		return func(ev eventbus.Event, subscriberID int64) (any, bool) {
			return ev.Group, GroupAdded(ev, args, subscriberID)
		}, eventbus.TopicGroupCreated, nil
	}
	return nil, "", appErrors.ErrInvalidParams.WithMessage("不支持的订阅: " + payload.OperationName)
}

// pump 把总线事件过滤后写入连接，会话失效或被淘汰时只结束本订阅流
func (s *Server) pump(ctx context.Context, conn *Conn, streamID, operation string, sub *eventbus.Subscription, match func(eventbus.Event, int64) (any, bool)) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				if sub.Evicted() {
					conn.logger.Warn("Subscription stream evicted", "stream_id", streamID)
					if conn.removeStream(streamID) {
						s.failStream(conn, streamID, appErrors.ErrServerError.WithMessage("订阅积压过多，已断开"))
					}
				}
				return
			}

			// 先按订阅参数过滤，只有要投递的事件才重新校验会话
			node, ok := match(ev, conn.UserID())
			if !ok {
				continue
			}

			if _, err := s.auth.ResolveUser(ctx, conn.token); err != nil {
				if ctx.Err() != nil {
					return
				}
				conn.logger.Info("Subscription session invalid", "stream_id", streamID, "error", err)
				if conn.removeStream(streamID) {
					s.failStream(conn, streamID, err)
				}
				return
			}

			if err := conn.Send(newMessage(streamID, TypeData, dataPayload(operation, node))); err != nil {
				return
			}
		}
	}
}

// failStream 发送 error 后结束订阅流
func (s *Server) failStream(conn *Conn, streamID string, err error) {
	_ = conn.Send(newMessage(streamID, TypeError, errorPayload(err)))
	_ = conn.Send(newMessage(streamID, TypeComplete, nil))
}

func decodeVariables(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return appErrors.ErrInvalidParams.Wrap(err)
	}
	return nil
}

func errorPayload(err error) ErrorPayload {
	return ErrorPayload{
		Code:    appErrors.GetCode(err),
		Message: appErrors.GetMessage(err),
	}
}
