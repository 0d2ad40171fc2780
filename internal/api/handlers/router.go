package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/api/smartcar"
	"github.com/langchou/carwatch/internal/models"
	"github.com/langchou/carwatch/internal/service"
	"github.com/langchou/carwatch/internal/state"
	"github.com/langchou/carwatch/pkg/ws"
)

// AuthClient 授权地址和授权码交换
type AuthClient interface {
	AuthURL(scopes []string, state string) string
	ExchangeCode(ctx context.Context, code string) (*smartcar.Access, error)
}

// VehicleService 车辆数据
type VehicleService interface {
	Vehicles(ctx context.Context) (*service.VehiclesResult, error)
	Invalidate()
}

// NoteStore 车辆备注
type NoteStore interface {
	Read(vehicleID string) ([]models.Note, error)
	Append(vehicleID string, note models.Note) (models.Note, error)
	Delete(vehicleID string, index int) error
}

// RefreshStatus 定时刷新状态
type RefreshStatus interface {
	State() state.RunState
}

// Options 处理器配置
type Options struct {
	Brands     []string
	MapsAPIKey string
	Metrics    http.Handler // 为 nil 时不注册 /metrics
}

// Handler HTTP 处理器
type Handler struct {
	logger         *zap.Logger
	auth           AuthClient
	tokens         service.TokenStore
	vehicleService VehicleService
	notes          NoteStore
	refresh        RefreshStatus
	wsHub          *ws.Hub
	opts           Options
	upgrader       websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	auth AuthClient,
	tokens service.TokenStore,
	vehicleService VehicleService,
	notes NoteStore,
	refresh RefreshStatus,
	wsHub *ws.Hub,
	opts Options,
) *Handler {
	return &Handler{
		logger:         logger,
		auth:           auth,
		tokens:         tokens,
		vehicleService: vehicleService,
		notes:          notes,
		refresh:        refresh,
		wsHub:          wsHub,
		opts:           opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// 授权
	r.GET("/", h.Home)
	r.GET("/login/:brand", h.Login)
	r.GET("/callback", h.Callback)

	// 车辆
	r.GET("/vehicles", h.ListVehicles)

	// 备注
	r.GET("/notes/:vehicleId", h.ListNotes)
	r.POST("/notes/:vehicleId", h.AddNote)
	r.DELETE("/notes/:vehicleId/:index", h.DeleteNote)

	// WebSocket
	if h.wsHub != nil {
		r.GET("/ws", h.HandleWebSocket)
	}

	// 健康检查
	r.GET("/health", h.HealthCheck)

	if h.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	if !client.Register() {
		conn.Close()
		return
	}

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.wsHub != nil {
		resp["ws_clients"] = h.wsHub.ClientCount()
	}
	if h.refresh != nil {
		resp["refresh"] = h.refresh.State()
	}
	c.JSON(http.StatusOK, resp)
}

// loginLinks 每个品牌的授权入口
func (h *Handler) loginLinks() gin.H {
	links := gin.H{}
	for _, brand := range h.opts.Brands {
		links[brand] = "/login/" + brand
	}
	return links
}

func (h *Handler) isSupportedBrand(brand string) bool {
	for _, b := range h.opts.Brands {
		if b == brand {
			return true
		}
	}
	return false
}
