// Package api implements the HTTP/WS Surface (C10): a versioned Gin
// router exposing the Store Gateway's managed entities and the
// long-running streams (events, exec output, VM attach, state apply).
package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nanocld/internal/cache"
	"nanocld/internal/cargoes"
	"nanocld/internal/events"
	"nanocld/internal/jobs"
	"nanocld/internal/middleware"
	"nanocld/internal/namespaces"
	"nanocld/internal/objstatus"
	"nanocld/internal/process"
	"nanocld/internal/resourcekinds"
	"nanocld/internal/resources"
	"nanocld/internal/secrets"
	"nanocld/internal/vmimage"
	"nanocld/internal/vms"
)

// Version is the daemon's own API version, gating every versioned route
// via middleware.VersionGate.
const Version = "v0.13"

// VersionInfo is the `GET /{v}/version` payload.
type VersionInfo struct {
	Arch     string `json:"Arch"`
	Channel  string `json:"Channel"`
	Version  string `json:"Version"`
	CommitId string `json:"CommitId"`
}

// HostInfo is the `GET /{v}/info` payload: a thin summary of the
// runtime and daemon configuration, not a persisted entity.
type HostInfo struct {
	Arch          string `json:"Arch"`
	NCPU          int    `json:"NCPU"`
	StateDir      string `json:"StateDir"`
	DockerHost    string `json:"DockerHost"`
	HostGateway   string `json:"HostGateway"`
	Uptime        string `json:"Uptime"`
}

// Server wires the Object Managers, the Process/Event/Status
// infrastructure, and the VM Image Manager onto the Gin router.
type Server struct {
	log zerolog.Logger

	Namespaces    *namespaces.Manager
	Cargoes       *cargoes.Manager
	Vms           *vms.Manager
	Jobs          *jobs.Manager
	Secrets       *secrets.Manager
	ResourceKinds *resourcekinds.Registry
	Resources     *resources.Manager
	Process       *process.Controller
	Images        *vmimage.Manager
	Status        *objstatus.Store
	Bus           *events.Bus
	Cache         *cache.Cache

	Config Config

	startedAt time.Time
}

// WithCache attaches a read-through cache for the hot inspect/list
// paths. Optional: a Server with a nil Cache behaves exactly as one
// built with a disabled cache.Cache (every Get misses).
func (s *Server) WithCache(c *cache.Cache) *Server {
	s.Cache = c
	return s
}

// Config holds the subset of daemon configuration the HTTP surface
// itself reports or needs directly (everything else is consumed by the
// components it's wired to).
type Config struct {
	StateDir    string
	DockerHost  string
	HostGateway string
}

// NewServer assembles the HTTP surface over already-constructed
// components; cmd/nanocld is responsible for building those components
// and wiring the Reconciler to the same Bus/managers.
func NewServer(log zerolog.Logger, cfg Config,
	ns *namespaces.Manager, c *cargoes.Manager, v *vms.Manager, j *jobs.Manager,
	sec *secrets.Manager, rk *resourcekinds.Registry, res *resources.Manager,
	proc *process.Controller, img *vmimage.Manager, st *objstatus.Store, bus *events.Bus,
) *Server {
	return &Server{
		log: log, Config: cfg,
		Namespaces: ns, Cargoes: c, Vms: v, Jobs: j, Secrets: sec,
		ResourceKinds: rk, Resources: res, Process: proc, Images: img, Status: st, Bus: bus,
		startedAt: time.Now(),
	}
}

// Router builds the full middleware chain and route table.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(s.log))
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(s.log))
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler(s.log))

	r.HEAD("/_ping", s.ping)
	r.GET("/_ping", s.ping)

	versioned := r.Group("/:v")
	versioned.Use(middleware.VersionGate(Version))
	{
		versioned.GET("/version", s.version)
		versioned.GET("/info", s.info)
		versioned.GET("/events", s.streamEvents)

		jsonGroup := versioned.Group("")
		jsonGroup.Use(middleware.SizeLimiter(middleware.DefaultJSONPayloadCap))
		s.registerNamespaceRoutes(jsonGroup)
		s.registerCargoRoutes(jsonGroup)
		s.registerVmRoutes(jsonGroup)
		s.registerJobRoutes(jsonGroup)
		s.registerResourceRoutes(jsonGroup)
		s.registerSecretRoutes(jsonGroup)
		s.registerProcessRoutes(jsonGroup)
		s.registerExecRoutes(jsonGroup)
		s.registerStateRoutes(jsonGroup)

		streamGroup := versioned.Group("")
		streamGroup.Use(middleware.SizeLimiter(middleware.StreamingPayloadCap))
		s.registerVmImageRoutes(streamGroup)
	}

	return r
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"msg": "pong"})
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, VersionInfo{
		Arch:     runtime.GOARCH,
		Channel:  envOr("NANOCL_CHANNEL", "stable"),
		Version:  Version,
		CommitId: envOr("NANOCL_COMMIT", "unknown"),
	})
}

func (s *Server) info(c *gin.Context) {
	c.JSON(http.StatusOK, HostInfo{
		Arch:        runtime.GOARCH,
		NCPU:        runtime.NumCPU(),
		StateDir:    s.Config.StateDir,
		DockerHost:  s.Config.DockerHost,
		HostGateway: s.Config.HostGateway,
		Uptime:      time.Since(s.startedAt).String(),
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
